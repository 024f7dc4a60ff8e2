package replay

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/units"
)

var (
	speedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	powerColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	cueColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Recorder collects the trace of a replay for plotting. Pass Recorder.Add
// to coach.WithTrace.
type Recorder struct {
	mu     sync.Mutex
	points []coach.TracePoint
}

// Add records one trace point.
func (r *Recorder) Add(p coach.TracePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
}

// Len returns the number of recorded points.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

// WritePlots renders speed.png and power.png into outputDir: the smoothed
// signal against time since the first sample, with emitted cues marked.
// It returns the files written.
func (r *Recorder) WritePlots(outputDir string) ([]string, error) {
	r.mu.Lock()
	points := append([]coach.TracePoint(nil), r.points...)
	r.mu.Unlock()

	if len(points) == 0 {
		return nil, errors.New("no trace points recorded")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outputDir, err)
	}

	t0 := points[0].TS
	speed := make(plotter.XYs, 0, len(points))
	power := make(plotter.XYs, 0, len(points))
	var speedCues, powerCues plotter.XYs
	for _, p := range points {
		x := p.TS - t0
		kmh := units.MpsToKmh(p.SpeedMps)
		speed = append(speed, plotter.XY{X: x, Y: kmh})
		power = append(power, plotter.XY{X: x, Y: p.PowerW})
		if p.Cue != nil {
			speedCues = append(speedCues, plotter.XY{X: x, Y: kmh})
			powerCues = append(powerCues, plotter.XY{X: x, Y: p.PowerW})
		}
	}

	var written []string
	for _, chart := range []struct {
		file, title, ylabel string
		line, cues          plotter.XYs
		color               color.Color
	}{
		{"speed.png", "Smoothed speed", "Speed (km/h)", speed, speedCues, speedColor},
		{"power.png", "Smoothed power", "Power (W)", power, powerCues, powerColor},
	} {
		path := filepath.Join(outputDir, chart.file)
		if err := savePlot(path, chart.title, chart.ylabel, chart.line, chart.cues, chart.color); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func savePlot(path, title, ylabel string, line, cues plotter.XYs, c color.Color) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel

	l, err := plotter.NewLine(line)
	if err != nil {
		return fmt.Errorf("%s line: %w", title, err)
	}
	l.Color = c
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(ylabel, l)

	if len(cues) > 0 {
		sc, err := plotter.NewScatter(cues)
		if err != nil {
			return fmt.Errorf("%s cues: %w", title, err)
		}
		sc.GlyphStyle.Color = cueColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("cue", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
