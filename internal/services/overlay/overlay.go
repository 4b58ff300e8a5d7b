// Package overlay draws detections and fusion state onto camera frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/linecrossing"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/zone"
)

var (
	green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	blue   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	cyan   = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	white  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black  = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

// classColors cycles through a fixed palette by class id.
var classColors = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
}

// FrameToMat wraps a BGR24 frame in a Mat. The caller closes it.
func FrameToMat(frame *models.RawFrame) (gocv.Mat, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	return mat, nil
}

func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// DrawDetections draws every box with its class name and confidence.
func DrawDetections(mat *gocv.Mat, detections []models.Detection, names map[int]string) {
	for _, det := range detections {
		if !det.Valid() {
			continue
		}
		c := white
		if det.ClassID >= 0 {
			c = classColors[det.ClassID%len(classColors)]
		}
		r := image.Rect(int(det.Box.X1), int(det.Box.Y1), int(det.Box.X2), int(det.Box.Y2))
		gocv.Rectangle(mat, r, c, 2)

		name, ok := names[det.ClassID]
		if !ok {
			name = fmt.Sprintf("class %d", det.ClassID)
		}
		label := fmt.Sprintf("%s %.2f", name, det.Confidence)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.45, 1)
		bg := image.Rect(r.Min.X, r.Min.Y-size.Y-6, r.Min.X+size.X+4, r.Min.Y)
		gocv.Rectangle(mat, bg, c, -1)
		gocv.PutText(mat, label, image.Pt(r.Min.X+2, r.Min.Y-4), gocv.FontHersheySimplex, 0.45, white, 1)
	}
}

func lineColor(touching bool) (color.RGBA, int) {
	if touching {
		return green, 4
	}
	return red, 3
}

func trackLabel(vehicleID string, trackID int) string {
	if vehicleID == "" {
		vehicleID = "N/A"
	}
	return fmt.Sprintf("%s:A%d", vehicleID, trackID)
}

// DrawLine draws the detection line, the touch status and the live axle
// tracks of the overhead camera.
func DrawLine(mat *gocv.Mat, st linecrossing.State) {
	c, thickness := lineColor(st.Touching)
	a := image.Pt(int(st.Line.A.X), int(st.Line.A.Y))
	b := image.Pt(int(st.Line.B.X), int(st.Line.B.Y))
	gocv.Line(mat, a, b, c, thickness)
	gocv.Circle(mat, a, 5, c, -1)
	gocv.Circle(mat, b, 5, c, -1)

	status := models.SystemStandby
	if st.Touching {
		status = models.SystemActive
	}
	DrawTextEnhanced(mat, "Status: "+status, 10, 60, c, 0.6, 2)

	for _, t := range st.Tracks {
		if len(t.Positions) == 0 {
			continue
		}
		recent := t.Positions
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for i := 1; i < len(recent); i++ {
			gocv.Line(mat,
				image.Pt(int(recent[i-1].X), int(recent[i-1].Y)),
				image.Pt(int(recent[i].X), int(recent[i].Y)),
				blue, 2)
		}

		last := t.Positions[len(t.Positions)-1]
		tc := cyan
		if t.Crossed {
			tc = yellow
		}
		p := image.Pt(int(last.X), int(last.Y))
		gocv.Circle(mat, p, 8, tc, -1)
		gocv.PutText(mat, trackLabel(t.VehicleID, t.ID), image.Pt(p.X+10, p.Y-10), gocv.FontHersheySimplex, 0.4, tc, 1)
	}

	if st.ActiveVehicle != "" {
		DrawTextEnhanced(mat, "Current Overhead Vehicle: "+st.ActiveVehicle, 10, 30, yellow, 0.6, 2)
	}
}

// DrawZone shades the transaction zone and labels it.
func DrawZone(mat *gocv.Mat, st zone.State) {
	r := image.Rect(int(st.Zone.X.Lo), int(st.Zone.Y.Lo), int(st.Zone.X.Hi), int(st.Zone.Y.Hi))

	shade := mat.Clone()
	defer shade.Close()
	gocv.Rectangle(&shade, r, green, -1)
	gocv.AddWeighted(shade, 0.2, *mat, 0.8, 0, mat)

	border := green
	if !st.Occupied {
		border = white
	}
	gocv.Rectangle(mat, r, border, 1)
	gocv.PutText(mat, "ZONA TRANSAKSI", image.Pt(r.Min.X+10, r.Min.Y+30), gocv.FontHersheySimplex, 0.5, white, 2)
}

// PanelConfig holds configuration for drawing info panels
type PanelConfig struct {
	X            int
	Y            int
	Width        int
	HeaderColor  color.RGBA
	BorderColor  color.RGBA
	HeaderHeight int
}

// DrawTextEnhanced draws text on a dark background with a soft shadow.
func DrawTextEnhanced(mat *gocv.Mat, text string, x, y int, textColor color.RGBA, fontScale float64, thickness int) {
	fontFace := gocv.FontHersheySimplex
	textSize := gocv.GetTextSize(text, fontFace, fontScale, thickness)

	padding := 6
	bgRect := image.Rect(x-padding, y-textSize.Y-padding, x+textSize.X+padding, y+padding)
	gocv.Rectangle(mat, bgRect, black, -1)
	gocv.Rectangle(mat, bgRect, color.RGBA{R: 40, G: 40, B: 40, A: 255}, 1)

	gocv.PutText(mat, text, image.Pt(x+1, y+1), fontFace, fontScale, color.RGBA{A: 100}, thickness)
	gocv.PutText(mat, text, image.Pt(x, y), fontFace, fontScale, textColor, thickness)
}

// DrawPanelHeader draws a filled header with a centred title and returns the
// y coordinate below it.
func DrawPanelHeader(mat *gocv.Mat, title string, cfg PanelConfig) int {
	fontFace := gocv.FontHersheySimplex
	textSize := gocv.GetTextSize(title, fontFace, 0.6, 2)

	header := image.Rect(cfg.X, cfg.Y, cfg.X+cfg.Width, cfg.Y+cfg.HeaderHeight)
	gocv.Rectangle(mat, header, cfg.HeaderColor, -1)
	gocv.Rectangle(mat, header, cfg.BorderColor, 2)

	textX := cfg.X + (cfg.Width-textSize.X)/2
	textY := cfg.Y + textSize.Y + (cfg.HeaderHeight-textSize.Y)/2
	gocv.PutText(mat, title, image.Pt(textX, textY), fontFace, 0.6, white, 2)
	return cfg.Y + cfg.HeaderHeight
}

// DrawPanelItem draws "label: value" and returns the next line's y.
func DrawPanelItem(mat *gocv.Mat, label, value string, x, y int, labelColor, valueColor color.RGBA, fontScale float64) int {
	fontFace := gocv.FontHersheySimplex
	labelText := label + ":"
	labelSize := gocv.GetTextSize(labelText, fontFace, fontScale, 1)
	gocv.PutText(mat, labelText, image.Pt(x, y), fontFace, fontScale, labelColor, 1)
	gocv.PutText(mat, value, image.Pt(x+labelSize.X+8, y), fontFace, fontScale, valueColor, 1)
	return y + int(float64(labelSize.Y)*1.8)
}

// DrawVehiclePanel draws the vehicle summary box in the top right corner.
func DrawVehiclePanel(mat *gocv.Mat, title, vehicleID, classification, status string) {
	cfg := PanelConfig{
		X:            mat.Cols() - 230,
		Y:            10,
		Width:        220,
		HeaderColor:  color.RGBA{R: 30, G: 90, B: 160, A: 255},
		BorderColor:  color.RGBA{R: 200, G: 200, B: 200, A: 255},
		HeaderHeight: 28,
	}
	body := image.Rect(cfg.X, cfg.Y, cfg.X+cfg.Width, cfg.Y+cfg.HeaderHeight+78)
	gocv.Rectangle(mat, body, black, -1)

	y := DrawPanelHeader(mat, title, cfg) + 22
	grey := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	y = DrawPanelItem(mat, "ID", vehicleID, cfg.X+10, y, grey, white, 0.5)
	y = DrawPanelItem(mat, "Golongan", classification, cfg.X+10, y, grey, yellow, 0.5)
	DrawPanelItem(mat, "Status", status, cfg.X+10, y, grey, white, 0.5)
}
