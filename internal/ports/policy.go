package ports

import "time"

type Policy struct {
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	RedrawInterval time.Duration `yaml:"redraw_interval"`
	RedrawBurst    int           `yaml:"redraw_burst"`
	SeriesCapacity int           `yaml:"series_capacity"` // 0 keeps every point
}
