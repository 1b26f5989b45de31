package radio

import (
	"errors"
	"fmt"
)

// ErrInvalidEndpoint is returned when endpoint minimum is not less than maximum.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is the clamp range applied to the final output of a channel.
type Endpoint struct {
	Min float64
	Max float64
}

// DefaultEndpoint is the full bipolar range.
var DefaultEndpoint = Endpoint{Min: -1, Max: 1}

// NewEndpoint returns an endpoint for provided range. Min must be less
// than max.
func NewEndpoint(min, max float64) (Endpoint, error) {
	e := Endpoint{Min: min, Max: max}
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

// Validate checks the endpoint invariant.
func (e Endpoint) Validate() error {
	if !(e.Min < e.Max) {
		return fmt.Errorf("%w: min %v must be less than max %v", ErrInvalidEndpoint, e.Min, e.Max)
	}
	return nil
}

// Clamp limits the value to the endpoint range.
func (e Endpoint) Clamp(v float64) float64 {
	if v < e.Min {
		return e.Min
	}
	if v > e.Max {
		return e.Max
	}
	return v
}
