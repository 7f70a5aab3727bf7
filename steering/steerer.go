// Package steering lets user hooks observe and modify a running
// simulation at regular physical steps. The Adapter presents a Steerer to
// the stepper as an ordinary patch provider.
package steering

import (
	"errors"
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
)

// ErrInvalidPeriod is returned for a steerer with period 0.
var ErrInvalidPeriod = errors.New("steerer period must be positive")

// Event tells a steerer why it is being called
type Event int

const (
	Initialized Event = iota
	NextStep
	AllDone
)

func (e Event) String() string {
	switch e {
	case Initialized:
		return "INITIALIZED"
	case NextStep:
		return "NEXT_STEP"
	case AllDone:
		return "ALL_DONE"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Steerer is a user hook called every Period physical steps
type Steerer[T any] interface {
	Period() uint64
	// SetRegion announces the cells the steerer will be handed
	SetRegion(region geometry.Region)
	NextStep(g grid.Grid[T], region geometry.Region, globalDims geometry.Coord,
		step uint64, event Event, rank int, lastCall bool, feedback *Feedback) error
}

// Feedback collects requests a steerer makes of the simulation.
type Feedback struct {
	endSimulation bool
}

// EndSimulation asks for the run to stop
func (f *Feedback) EndSimulation() { f.endSimulation = true }

func (f *Feedback) EndRequested() bool { return f.endSimulation }

// applyFeedback is where collected feedback would act on the run. Nothing
// consumes it yet.
func applyFeedback(_ *Feedback) {}
