package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/pipeline"
)

// DetectImage runs face detection on encoded image bytes, for uploads and
// still photos.
func (d *Detector) DetectImage(data []byte, index int) (*pipeline.Frame, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode image")
	}

	faces, err := d.Faces(img)
	if err != nil {
		return nil, err
	}
	return &pipeline.Frame{Index: index, Timestamp: time.Now(), Faces: faces}, nil
}
