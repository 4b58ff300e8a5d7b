package overlay

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/rchmtmaulana/skripsi-avc/internal/geometry"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/linecrossing"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/zone"
)

func blankFrame() *models.RawFrame {
	return &models.RawFrame{Width: 640, Height: 480, Data: make([]byte, 640*480*3)}
}

func TestTrackLabel(t *testing.T) {
	assert.Equal(t, "V0003:A7", trackLabel("V0003", 7))
	assert.Equal(t, "N/A:A1", trackLabel("", 1))
}

func TestLineColorFollowsTouch(t *testing.T) {
	c, thick := lineColor(true)
	assert.Equal(t, green, c)
	assert.Equal(t, 4, thick)

	c, thick = lineColor(false)
	assert.Equal(t, red, c)
	assert.Equal(t, 3, thick)
}

func TestDrawLineMarksMidpoint(t *testing.T) {
	mat, err := FrameToMat(blankFrame())
	require.NoError(t, err)
	defer mat.Close()

	DrawLine(&mat, linecrossing.State{Line: geometry.NewLine(200, 260, 350, 210), Touching: true})

	// Vecb is BGR
	px := mat.GetVecbAt(235, 275)
	assert.Equal(t, gocv.Vecb{0, 255, 0}, px)
}

func TestDrawLineTracks(t *testing.T) {
	mat, err := FrameToMat(blankFrame())
	require.NoError(t, err)
	defer mat.Close()

	DrawLine(&mat, linecrossing.State{
		Line: geometry.NewLine(200, 260, 350, 210),
		Tracks: []linecrossing.TrackView{
			{ID: 1, VehicleID: "V0001", Positions: []r2.Point{{X: 500, Y: 400}}, Crossed: true},
		},
	})
	px := mat.GetVecbAt(400, 500)
	assert.Equal(t, gocv.Vecb{0, 255, 255}, px, "crossed tracks are yellow")
}

func TestDrawZoneShadesRectangle(t *testing.T) {
	mat, err := FrameToMat(blankFrame())
	require.NoError(t, err)
	defer mat.Close()

	DrawZone(&mat, zone.State{Zone: zone.DefaultConfig().Zone, Occupied: true})

	assert.Equal(t, gocv.Vecb{0, 51, 0}, mat.GetVecbAt(400, 80))
	assert.Equal(t, gocv.Vecb{0, 0, 0}, mat.GetVecbAt(400, 400), "outside the zone is untouched")
}

func TestEncodeJPEG(t *testing.T) {
	mat, err := FrameToMat(blankFrame())
	require.NoError(t, err)
	defer mat.Close()

	DrawDetections(&mat, []models.Detection{
		{Box: models.Box{X1: 10, Y1: 30, X2: 100, Y2: 120}, ClassID: 1, Confidence: 0.9},
	}, map[int]string{1: "car"})

	b, err := EncodeJPEG(mat, 75)
	require.NoError(t, err)
	require.Greater(t, len(b), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, b[:2])
}
