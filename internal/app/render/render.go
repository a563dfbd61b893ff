// Package render draws one metric series as a line chart.
package render

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
)

const (
	FormatPNG = "png"
	FormatSVG = "svg"

	// valuePadRatio widens the value axis on both sides by a share of the observed span.
	valuePadRatio = 0.10
	// flatValuePad is used when every point has the same value.
	flatValuePad = 0.1
	// singleTimePad is used when the series has a single point in time.
	singleTimePad = 0.5
)

var units = map[string]string{
	domain.MetricVoltage:     "V",
	domain.MetricCurrent:     "A",
	domain.MetricTDS:         "ppm",
	domain.MetricTemperature: "°C",
}

var lineColors = map[string]drawing.Color{
	domain.MetricVoltage:     chart.ColorBlue,
	domain.MetricCurrent:     chart.ColorOrange,
	domain.MetricTDS:         chart.ColorGreen,
	domain.MetricTemperature: chart.ColorRed,
}

type Config struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format string `yaml:"format"`
}

func (c *Config) ApplyDefaults() {
	if c.Width <= 0 {
		c.Width = 800
	}
	if c.Height <= 0 {
		c.Height = 320
	}
	if c.Format == "" {
		c.Format = FormatPNG
	}
	c.Format = strings.ToLower(c.Format)
}

func (c *Config) Validate() error {
	switch c.Format {
	case FormatPNG, FormatSVG:
	default:
		return fmt.Errorf("%w: render.format %q must be png or svg", domain.ErrConfiguration, c.Format)
	}
	if c.Width < 64 || c.Height < 64 {
		return fmt.Errorf("%w: render size %dx%d is too small", domain.ErrConfiguration, c.Width, c.Height)
	}
	return nil
}

// Renderer draws one metric series as a chart image.
type Renderer struct {
	cfg Config
}

// NewRenderer applies defaults to cfg. Call cfg.Validate first to reject bad input.
func NewRenderer(cfg Config) *Renderer {
	cfg.ApplyDefaults()
	return &Renderer{cfg: cfg}
}

// ContentType is the MIME type of the images Render writes.
func (r *Renderer) ContentType() string {
	if r.cfg.Format == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Render draws points of metric into w. An empty series produces a blank
// placeholder. Nothing is written to w when rendering fails.
func (r *Renderer) Render(w io.Writer, metric string, pts []series.Point) error {
	var buf bytes.Buffer
	b, ok := series.BoundsOf(pts)
	if !ok {
		if err := r.blank(&buf, metric); err != nil {
			return fmt.Errorf("render %s placeholder: %w", metric, err)
		}
		_, err := buf.WriteTo(w)
		return err
	}

	xs := make([]float64, 0, len(pts)+1)
	ys := make([]float64, 0, len(pts)+1)
	for _, p := range pts {
		xs = append(xs, p.Elapsed)
		ys = append(ys, p.Value)
	}
	if len(pts) == 1 {
		// a single point draws nothing, so extend it into a short flat segment
		xs = append(xs, xs[0]+singleTimePad)
		ys = append(ys, ys[0])
	}

	vMin, vMax := ValueRange(b)
	tMin, tMax := TimeRange(b)

	ch := chart.Chart{
		Title:  metric,
		Width:  r.cfg.Width,
		Height: r.cfg.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 12},
		},
		XAxis: chart.XAxis{
			Name:           "Elapsed (s)",
			Range:          &chart.ContinuousRange{Min: tMin, Max: tMax},
			ValueFormatter: formatSeconds,
		},
		YAxis: chart.YAxis{
			Name:           AxisLabel(metric),
			Range:          &chart.ContinuousRange{Min: vMin, Max: vMax},
			ValueFormatter: formatValue,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    metric,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: colorOf(metric),
					StrokeWidth: 2,
				},
			},
		},
	}

	if err := ch.Render(r.provider(), &buf); err != nil {
		return fmt.Errorf("render %s: %w", metric, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *Renderer) provider() chart.RendererProvider {
	if r.cfg.Format == FormatSVG {
		return chart.SVG
	}
	return chart.PNG
}

func (r *Renderer) blank(w io.Writer, metric string) error {
	rr, err := r.provider()(r.cfg.Width, r.cfg.Height)
	if err != nil {
		return err
	}

	rr.SetFillColor(drawing.ColorWhite)
	rr.MoveTo(0, 0)
	rr.LineTo(r.cfg.Width, 0)
	rr.LineTo(r.cfg.Width, r.cfg.Height)
	rr.LineTo(0, r.cfg.Height)
	rr.Close()
	rr.Fill()

	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	msg := "waiting for " + metric + " data"
	rr.SetFont(font)
	rr.SetFontSize(12)
	rr.SetFontColor(chart.ColorAlternateGray)
	box := rr.MeasureText(msg)
	rr.Text(msg, (r.cfg.Width-box.Width())/2, (r.cfg.Height+box.Height())/2)

	return rr.Save(w)
}

// ValueRange pads the observed value bounds by 10% of their span, or by an
// absolute 0.1 when the series is flat.
func ValueRange(b series.Bounds) (float64, float64) {
	pad := (b.MaxValue - b.MinValue) * valuePadRatio
	if pad == 0 {
		pad = flatValuePad
	}
	return b.MinValue - pad, b.MaxValue + pad
}

// TimeRange returns the observed elapsed bounds, widened to one second around
// a single instant.
func TimeRange(b series.Bounds) (float64, float64) {
	if b.MaxElapsed == b.MinElapsed {
		return b.MinElapsed - singleTimePad, b.MaxElapsed + singleTimePad
	}
	return b.MinElapsed, b.MaxElapsed
}

// Unit returns the measurement unit of metric, or "" if unknown.
func Unit(metric string) string { return units[metric] }

// AxisLabel is the value axis caption, e.g. "Voltage (V)".
func AxisLabel(metric string) string {
	if u := Unit(metric); u != "" {
		return metric + " (" + u + ")"
	}
	return metric
}

func colorOf(metric string) drawing.Color {
	if c, ok := lineColors[metric]; ok {
		return c
	}
	return chart.ColorBlack
}

func formatSeconds(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return ""
}

func formatValue(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return ""
}
