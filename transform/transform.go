// Package transform describes the logarithmic transform applied after
// total-count scaling and its inverse.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidBase is returned when a base cannot be parsed or is not usable
// as a logarithm base.
var ErrInvalidBase = errors.New("transform: invalid base")

// Base is a logarithm base. The zero value is the identity ("none"): the
// values were scaled but never log transformed.
type Base struct {
	value float64
}

var (
	E    = Base{value: math.E}
	Two  = Base{value: 2}
	Ten  = Base{value: 10}
	None = Base{}
)

// NewBase returns a numeric base. Bases must be finite and greater than 1.
func NewBase(b float64) (Base, error) {
	if math.IsNaN(b) || math.IsInf(b, 0) || b <= 1 {
		return Base{}, fmt.Errorf("%w: %v", ErrInvalidBase, b)
	}
	return Base{value: b}, nil
}

// IsNone reports whether the base is the identity transform.
func (b Base) IsNone() bool {
	return b.value == 0
}

// Value returns the numeric base, zero for None.
func (b Base) Value() float64 {
	return b.value
}

func (b Base) String() string {
	switch {
	case b.IsNone():
		return "none"
	case b.value == math.E:
		return "e"
	default:
		return strconv.FormatFloat(b.value, 'g', -1, 64)
	}
}

// MarshalText encodes the base the way ParseBase reads it.
func (b Base) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a base written by MarshalText.
func (b *Base) UnmarshalText(text []byte) error {
	parsed, err := ParseBase(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBase reads "e", "none" or a number.
func ParseBase(s string) (Base, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e":
		return E, nil
	case "none":
		return None, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Base{}, fmt.Errorf("%w: %q", ErrInvalidBase, s)
	}
	return NewBase(v)
}

// Candidates lists the bases tried when none is configured, in priority order.
func Candidates() []Base {
	return []Base{E, None, Two, Ten}
}

// Constants lists the additive constants swept when none is configured.
func Constants() []float64 {
	return []float64{1, 0.1, 0.01, 0.001, 0}
}

// Candidate is a base and additive constant pair.
type Candidate struct {
	Base     Base    `json:"base"`
	Constant float64 `json:"constant"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("base=%s constant=%g", c.Base, c.Constant)
}

// Inverse undoes log_base(x + constant) for one value.
func (c Candidate) Inverse(y float64) float64 {
	if c.Base.IsNone() {
		return y - c.Constant
	}
	return math.Pow(c.Base.value, y) - c.Constant
}

// InverseAll returns a new slice with Inverse applied to every value.
func (c Candidate) InverseAll(ys []float64) []float64 {
	out := make([]float64, len(ys))
	for i, y := range ys {
		out[i] = c.Inverse(y)
	}
	return out
}
