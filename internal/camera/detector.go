package camera

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

// Detector finds frontal faces with a Haar cascade. The classifier is not safe
// for concurrent use, so detections are serialised.
type Detector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

// NewDetector loads the cascade file named in the camera config.
func NewDetector(cfg config.CameraConfig) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier from %s", cfg.CascadePath)
	}

	return &Detector{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      image.Pt(cfg.MinFaceSize, cfg.MinFaceSize),
	}, nil
}

// Close releases the classifier.
func (d *Detector) Close() {
	d.classifier.Close()
}

// Detect returns face boxes in a BGR image.
func (d *Detector) Detect(img gocv.Mat) []image.Rectangle {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.DetectMultiScaleWithParams(
		gray,
		d.scaleFactor,
		d.minNeighbors,
		0,
		d.minSize,
		image.Point{},
	)
}

// Faces detects faces and returns each one cropped from the colour image and
// JPEG encoded for the embedding service.
func (d *Detector) Faces(img gocv.Mat) ([]pipeline.Face, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	var faces []pipeline.Face
	for _, box := range d.Detect(img) {
		box = box.Intersect(bounds)
		if box.Empty() {
			continue
		}

		data, err := encodeRegion(img, box)
		if err != nil {
			return nil, err
		}
		faces = append(faces, pipeline.Face{Box: box, Image: data})
	}
	return faces, nil
}

func encodeRegion(img gocv.Mat, box image.Rectangle) ([]byte, error) {
	region := img.Region(box)
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		return nil, fmt.Errorf("failed to encode face: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so keep a copy.
	return bytes.Clone(buf.GetBytes()), nil
}
