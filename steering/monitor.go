package steering

import (
	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sample summarizes the cells a Monitor saw at one step
type Sample struct {
	Step  uint64
	Event Event
	Cells int
	Sum   float64
	Mean  float64
	Min   float64
	Max   float64
}

// Monitor is a read-only steerer that logs field statistics of its
// region every period.
type Monitor struct {
	period  uint64
	region  geometry.Region
	logger  logging.Logger
	samples []Sample
	values  []float64
}

var _ Steerer[float64] = (*Monitor)(nil)

func NewMonitor(period uint64, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{period: period, logger: logger}
}

func (m *Monitor) Period() uint64 { return m.period }

func (m *Monitor) SetRegion(region geometry.Region) { m.region = region }

func (m *Monitor) NextStep(g grid.Grid[float64], region geometry.Region, _ geometry.Coord,
	step uint64, event Event, rank int, _ bool, _ *Feedback) error {
	if !m.region.Empty() {
		region = region.Intersect(m.region)
	}
	m.values = grid.CopyRegionOut(g, region, m.values[:0])
	s := Sample{Step: step, Event: event, Cells: len(m.values)}
	if len(m.values) > 0 {
		s.Sum = floats.Sum(m.values)
		s.Mean = stat.Mean(m.values, nil)
		s.Min = floats.Min(m.values)
		s.Max = floats.Max(m.values)
	}
	m.samples = append(m.samples, s)
	m.logger.Info("field sample", "rank", rank, "step", step, "event", event.String(),
		"cells", s.Cells, "sum", s.Sum, "mean", s.Mean, "min", s.Min, "max", s.Max)
	return nil
}

// Samples returns every sample taken so far
func (m *Monitor) Samples() []Sample { return m.samples }
