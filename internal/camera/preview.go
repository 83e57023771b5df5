package camera

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/attendance/internal/pipeline"
)

const windowTitle = "Automated Attendance System"

var (
	colorKnown   = color.RGBA{0, 255, 0, 0}
	colorUnknown = color.RGBA{0, 0, 255, 0}
	colorError   = color.RGBA{0, 255, 255, 0}
)

// Preview draws recognitions on the live frame. Pressing q stops the run.
type Preview struct {
	window *gocv.Window
	source *Source
}

func NewPreview(source *Source) *Preview {
	return &Preview{window: gocv.NewWindow(windowTitle), source: source}
}

func (p *Preview) Show(_ *pipeline.Frame, recs []pipeline.Recognition) bool {
	img := p.source.Current()
	defer img.Close()

	for _, rec := range recs {
		label, c := labelFor(rec)
		gocv.Rectangle(&img, rec.Face.Box, c, 2)
		gocv.PutText(&img, label, image.Pt(rec.Face.Box.Min.X, rec.Face.Box.Min.Y-10),
			gocv.FontHersheySimplex, 0.8, c, 2)
	}

	p.window.IMShow(img)
	return p.window.WaitKey(1)&0xFF != 'q'
}

// Close closes the window.
func (p *Preview) Close() error {
	return p.window.Close()
}

func labelFor(rec pipeline.Recognition) (string, color.RGBA) {
	switch {
	case rec.Err != nil:
		return "?", colorError
	case rec.Match.Known:
		return rec.Match.String(), colorKnown
	default:
		return rec.Match.String(), colorUnknown
	}
}
