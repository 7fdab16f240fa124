// Package temp provides an explicit optional temperature value.
// A Reading is either Known(value) or Unknown; there is no NaN sentinel.
package temp

import (
	"encoding/json"
	"fmt"
)

// Reading is a temperature that may be unknown.
// The zero value is Unknown.
type Reading struct {
	value float64
	known bool
}

// Unknown is the reading used when no value is available.
var Unknown = Reading{}

// Known returns a reading holding v.
func Known(v float64) Reading {
	return Reading{value: v, known: true}
}

// Get returns the value and whether it is known.
func (r Reading) Get() (float64, bool) {
	return r.value, r.known
}

// IsKnown reports whether the reading holds a value.
func (r Reading) IsKnown() bool {
	return r.known
}

// Map applies f to a known value. Unknown stays Unknown.
func (r Reading) Map(f func(float64) float64) Reading {
	if !r.known {
		return Unknown
	}
	return Known(f(r.value))
}

func (r Reading) String() string {
	if !r.known {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", r.value)
}

// MarshalJSON encodes Unknown as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.known {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON decodes null as Unknown.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Unknown
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Known(v)
	return nil
}
