package trafficview

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
)

// Screenshot queues a labeled screenshot of the next drawn frame. The PNG is
// written to ScreenshotDir, named after the simulation time and label.
func (s *Scene) Screenshot(label string) {
	s.screenshotQueue = append(s.screenshotQueue, label)
}

// flushScreenshots captures the rendered frame for every queued label.
// Called at the end of Scene.Draw.
func (s *Scene) flushScreenshots(screen *ebiten.Image) {
	if len(s.screenshotQueue) == 0 {
		return
	}
	defer func() { s.screenshotQueue = s.screenshotQueue[:0] }()

	if err := os.MkdirAll(s.ScreenshotDir, 0o755); err != nil {
		logger.WithError(err).WithField("dir", s.ScreenshotDir).Warn("screenshot skipped")
		return
	}
	img := readFrame(screen)
	for _, label := range s.screenshotQueue {
		name := fmt.Sprintf("t%09.2f_%s.png", s.simTime, sanitizeLabel(label))
		path := filepath.Join(s.ScreenshotDir, name)
		if err := writePNG(path, img); err != nil {
			logger.WithError(err).Warn("screenshot failed")
			continue
		}
		logger.WithField("path", path).Info("screenshot written")
	}
}

// readFrame copies the screen into a straight-alpha image.
func readFrame(screen *ebiten.Image) *image.NRGBA {
	b := screen.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	screen.ReadPixels(img.Pix)
	// ReadPixels yields premultiplied alpha.
	for i := 0; i < len(img.Pix); i += 4 {
		a := int(img.Pix[i+3])
		if a == 0 || a == 255 {
			continue
		}
		for k := 0; k < 3; k++ {
			img.Pix[i+k] = uint8(min(int(img.Pix[i+k])*255/a, 255))
		}
	}
	return img
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeLabel keeps letters, digits, '-' and '.', replacing everything
// else with '_'. Empty labels become "frame".
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "frame"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, label)
}
