package detection

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rchmtmaulana/skripsi-avc/internal/models"
)

// Request and response are generic protobuf Structs so the worker does not
// depend on generated stubs of the detector service. A request looks like
//
//	{"model": "overhead", "image": "<base64 jpeg>", "width": 640, "height": 480, "confidence": 0.5}
//
// and a response like
//
//	{"detections": [{"x1": 10, "y1": 20, "x2": 30, "y2": 40, "class_id": 0, "confidence": 0.91}]}
func buildRequest(model string, jpeg []byte, width, height int, confidence float64) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"model":      model,
		"image":      base64.StdEncoding.EncodeToString(jpeg),
		"width":      width,
		"height":     height,
		"confidence": confidence,
	})
}

// parseResponse converts a detector response. Entries that are malformed or
// below minConfidence are dropped; only a missing detections list is an error.
func parseResponse(resp *structpb.Struct, minConfidence float64) ([]models.Detection, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty detector response")
	}
	field, ok := resp.GetFields()["detections"]
	if !ok {
		return nil, nil
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("detections is %T, want list", field.GetKind())
	}

	out := make([]models.Detection, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		det, ok := decodeDetection(s.GetFields())
		if !ok || det.Confidence < minConfidence || !det.Valid() {
			continue
		}
		out = append(out, det)
	}
	return out, nil
}

func decodeDetection(f map[string]*structpb.Value) (models.Detection, bool) {
	var nums [6]float64
	for i, key := range []string{"x1", "y1", "x2", "y2", "class_id", "confidence"} {
		v, ok := f[key]
		if !ok {
			return models.Detection{}, false
		}
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return models.Detection{}, false
		}
		nums[i] = v.GetNumberValue()
	}
	return models.Detection{
		Box:        models.Box{X1: nums[0], Y1: nums[1], X2: nums[2], Y2: nums[3]},
		ClassID:    int(nums[4]),
		Confidence: nums[5],
	}, true
}
