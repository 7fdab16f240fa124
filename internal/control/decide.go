package control

import "github.com/sweeney/sousvide/internal/temp"

// Decide computes the outputs for one step.
// heating is the heater state left by the previous step; it is kept while the
// current temperature sits in (setpoint-HeatThreshold, setpoint+CoolThreshold].
func Decide(setpoint, current temp.Reading, heating bool) Actuators {
	sp, ok := setpoint.Get()
	if !ok {
		return Actuators{}
	}
	cur, ok := current.Get()
	if !ok {
		return Actuators{}
	}

	out := Actuators{Pump: true, Heater: heating}
	if sp-cur > HeatThreshold {
		out.Heater = true
	}
	if cur-sp > CoolThreshold {
		out.Heater = false
	}
	return out
}
