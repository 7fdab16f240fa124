// Package max31855 reads and decodes frames from a MAX31855 thermocouple
// to digital converter.
//
// Each frame is 32 bits, big-endian on the wire:
//
//	bit  0      open-circuit fault
//	bit  1      short-to-GND fault
//	bit  2      short-to-VCC fault
//	bits 3-14   internal (reference junction) temperature, 0.25 degC units
//	bit  15     any fault
//	bits 18-31  thermocouple temperature, 0.25 degC units
//
// Temperatures are treated as unsigned; sub-zero readings are out of range
// for a water bath.
package max31855

import (
	"fmt"

	"github.com/sweeney/sousvide/internal/temp"
)

// Sample is one decoded frame.
type Sample struct {
	OpenCircuit  bool   // no thermocouple connected
	ShortGND     bool   // thermocouple shorted to GND
	ShortVCC     bool   // thermocouple shorted to VCC
	Internal     uint16 // reference junction temperature (degC * 4)
	Fault        bool   // set if any fault is present
	Thermocouple uint16 // thermocouple temperature (degC * 4)
}

// Decode splits a raw frame into its fields.
func Decode(raw uint32) Sample {
	return Sample{
		OpenCircuit:  raw&0x01 != 0,
		ShortGND:     (raw>>1)&0x01 != 0,
		ShortVCC:     (raw>>2)&0x01 != 0,
		Internal:     uint16((raw >> 3) & 0xFFF),
		Fault:        (raw>>15)&0x01 != 0,
		Thermocouple: uint16(raw >> 18),
	}
}

// Celsius returns the thermocouple temperature, or Unknown on fault.
func (s Sample) Celsius() temp.Reading {
	if s.Fault {
		return temp.Unknown
	}
	return temp.Known(float64(s.Thermocouple) / 4.0)
}

// Fahrenheit returns the thermocouple temperature, or Unknown on fault.
// 0.45 is 9/5 folded with the quarter-degree scale.
func (s Sample) Fahrenheit() temp.Reading {
	if s.Fault {
		return temp.Unknown
	}
	return temp.Known(float64(s.Thermocouple)*0.45 + 32.0)
}

// InternalCelsius returns the reference junction temperature, or Unknown on fault.
func (s Sample) InternalCelsius() temp.Reading {
	if s.Fault {
		return temp.Unknown
	}
	return temp.Known(float64(s.Internal) / 4.0)
}

func (s Sample) String() string {
	if s.Fault {
		switch {
		case s.OpenCircuit:
			return "fault (open connection)"
		case s.ShortGND:
			return "fault (shorted to GND)"
		case s.ShortVCC:
			return "fault (shorted to VCC)"
		default:
			return "fault (unknown)"
		}
	}
	f, _ := s.Fahrenheit().Get()
	return fmt.Sprintf("%g (F)", f)
}
