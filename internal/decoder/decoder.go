// Package decoder translates the compact hex payloads produced by the field
// sensor firmware into physical units. Decoding is pure: no I/O, no state.
package decoder

import (
	"strconv"
	"strings"
)

// Decoded holds the fields recovered from one payload. Only the fields the
// device family actually reports are set; the rest stay nil so callers can
// apply their own fallbacks.
type Decoded struct {
	PH          *float64
	Moisture    *float64
	EC          *float64
	Temperature *float64
	Humidity    *float64
	Light       *float64
	TDSLevel    *float64
}

// field describes one 16-bit chunk of a family layout: the divisor that
// recovers the physical value and where it lands in Decoded.
type field struct {
	scale  float64
	assign func(*Decoded, float64)
}

// Each family packs its fields as consecutive 4-character hex chunks, each
// chunk a big-endian uint16.
var layouts = map[string][]field{
	"CZ": {
		{100, func(d *Decoded, v float64) { d.PH = &v }},
		{10, func(d *Decoded, v float64) { d.Moisture = &v }},
		{100, func(d *Decoded, v float64) { d.EC = &v }},
		{10, func(d *Decoded, v float64) { d.Temperature = &v }},
	},
	"MZ": {
		{100, func(d *Decoded, v float64) { d.PH = &v }},
		{100, func(d *Decoded, v float64) { d.EC = &v }},
		{10, func(d *Decoded, v float64) { d.Temperature = &v }},
	},
	"SZ": {
		{100, func(d *Decoded, v float64) { d.PH = &v }},
		{100, func(d *Decoded, v float64) { d.EC = &v }},
		{10, func(d *Decoded, v float64) { d.Temperature = &v }},
	},
	"GZ": {
		{10, func(d *Decoded, v float64) { d.Temperature = &v }},
		{10, func(d *Decoded, v float64) { d.Humidity = &v }},
		{1, func(d *Decoded, v float64) { d.Light = &v }},
	},
	"HZ": {
		{100, func(d *Decoded, v float64) { d.PH = &v }},
		{10, func(d *Decoded, v float64) { d.TDSLevel = &v }},
		{10, func(d *Decoded, v float64) { d.Temperature = &v }},
	},
}

const chunkLen = 4

// Decode parses an encoded payload for the device family identified by the
// first two letters of deviceCode. It returns ok == false for an unknown
// family or a malformed payload (wrong length, non-hex characters); callers
// must treat that as "no usable reading", not as a fatal error.
func Decode(encoded, deviceCode string) (*Decoded, bool) {
	if len(deviceCode) < 2 {
		return nil, false
	}

	layout, ok := layouts[strings.ToUpper(deviceCode[:2])]
	if !ok {
		return nil, false
	}
	if len(encoded) != chunkLen*len(layout) {
		return nil, false
	}

	d := &Decoded{}
	for i, f := range layout {
		chunk := encoded[i*chunkLen : (i+1)*chunkLen]
		raw, err := strconv.ParseUint(chunk, 16, 16)
		if err != nil {
			return nil, false
		}
		f.assign(d, float64(raw)/f.scale)
	}

	return d, true
}
