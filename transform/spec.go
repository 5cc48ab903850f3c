package transform

import (
	"strings"
)

// BaseMode says how the base of a run is chosen.
type BaseMode int

const (
	// BaseUnset tries the candidate bases, then falls back to a joint fit.
	BaseUnset BaseMode = iota
	// BaseAuto always runs the joint fit.
	BaseAuto
	// BaseFixed uses the configured base.
	BaseFixed
)

// BaseSpec is the configured base: unset, auto, or a fixed base.
type BaseSpec struct {
	Mode BaseMode
	Base Base
}

// Fixed returns a spec for base b.
func Fixed(b Base) BaseSpec {
	return BaseSpec{Mode: BaseFixed, Base: b}
}

// Auto is the spec that always runs the joint fit.
var Auto = BaseSpec{Mode: BaseAuto}

func (s BaseSpec) String() string {
	switch s.Mode {
	case BaseAuto:
		return "auto"
	case BaseFixed:
		return s.Base.String()
	default:
		return ""
	}
}

// ParseBaseSpec reads "", "auto", "e", "none" or a number.
func ParseBaseSpec(s string) (BaseSpec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return BaseSpec{}, nil
	case "auto":
		return Auto, nil
	}
	b, err := ParseBase(s)
	if err != nil {
		return BaseSpec{}, err
	}
	return Fixed(b), nil
}

// MarshalText encodes the spec the way ParseBaseSpec reads it.
func (s BaseSpec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a spec written by MarshalText.
func (s *BaseSpec) UnmarshalText(text []byte) error {
	parsed, err := ParseBaseSpec(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
