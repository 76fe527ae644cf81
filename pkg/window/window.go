// Package window provides the apodization window used to taper the influence
// of a particle's deposition kernel near its support boundary.
package window

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBeta is returned when the roll-off lies outside (0, 1)
var ErrInvalidBeta = errors.New("window: beta must lie in (0, 1)")

// Window is a Hann-type raised-cosine window with roll-off Beta.
// It maps a normalised weight w to an attenuation in [0, 1]: fully
// attenuated below (1-Beta)/2, fully passed above (1+Beta)/2.
type Window struct {
	Beta float64
}

// New creates a window, rejecting roll-offs outside the open interval (0, 1)
func New(beta float64) (Window, error) {
	if !(beta > 0 && beta < 1) {
		return Window{}, fmt.Errorf("%w: got %g", ErrInvalidBeta, beta)
	}
	return Window{Beta: beta}, nil
}

// At evaluates the window at w
func (win Window) At(w float64) float64 {
	return Hann(win.Beta, w)
}

// Lower returns the edge of the stop band
func (win Window) Lower() float64 { return (1 - win.Beta) / 2 }

// Upper returns the edge of the pass band
func (win Window) Upper() float64 { return (1 + win.Beta) / 2 }

// Hann evaluates the raised-cosine window with roll-off beta at w.
// The edges are returned exactly so that At(Lower()) == 0 and At(Upper()) == 1.
func Hann(beta, w float64) float64 {
	lo := (1 - beta) / 2
	switch {
	case w <= lo:
		return 0
	case w >= (1+beta)/2:
		return 1
	default:
		return (1 - math.Cos(math.Pi*(w-lo)/beta)) / 2
	}
}
