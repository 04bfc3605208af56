// ABOUTME: Capability descriptors and negotiation between sources and sinks
// ABOUTME: Offers carry arrays of acceptable values, configurations carry scalars
package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Media types understood by the codecs in this module
const (
	MediaTypeRaw  = "audio/x-raw"
	MediaTypeOpus = "audio/opus"
)

// Parameter names
const (
	ParamChannels = "Channels"
	ParamRate     = "Rate"
	ParamFormat   = "Format"
)

// FormatS16LE is the only sample format sinks render
const FormatS16LE = "s16le"

// ErrNoMatch is returned when negotiation finds no usable capability
var ErrNoMatch = errors.New("no matching capability")

// Param is one named value
type Param struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Capability names an encoding and its parameters
type Capability struct {
	Type   string  `json:"type"`
	Params []Param `json:"params"`
}

// Get returns the named parameter
func (c Capability) Get(name string) (Value, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of c with the named parameter set
func (c Capability) With(name string, v Value) Capability {
	out := Capability{Type: c.Type, Params: make([]Param, 0, len(c.Params)+1)}
	replaced := false
	for _, p := range c.Params {
		if p.Name == name {
			p.Value = v
			replaced = true
		}
		out.Params = append(out.Params, p)
	}
	if !replaced {
		out.Params = append(out.Params, Param{Name: name, Value: v})
	}
	return out
}

// IsConfiguration reports whether every parameter holds a single scalar
func (c Capability) IsConfiguration() bool {
	for _, p := range c.Params {
		if p.Value.Kind().IsArray() || p.Value.Kind() == KindInvalid {
			return false
		}
	}
	return true
}

func (c Capability) String() string {
	parts := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		parts = append(parts, fmt.Sprintf("%s=%s", p.Name, p.Value))
	}
	return fmt.Sprintf("%s{%s}", c.Type, strings.Join(parts, ", "))
}

// Find returns the offered capability with the given media type
func Find(offered []Capability, mediaType string) (Capability, bool) {
	for _, c := range offered {
		if c.Type == mediaType {
			return c, true
		}
	}
	return Capability{}, false
}

// Select picks the offer matching preferred, falling back to raw audio
func Select(offered []Capability, preferred string) (Capability, error) {
	if preferred != "" {
		if c, ok := Find(offered, preferred); ok {
			return c, nil
		}
	}
	if c, ok := Find(offered, MediaTypeRaw); ok {
		return c, nil
	}
	return Capability{}, fmt.Errorf("%w: neither %q nor %q offered", ErrNoMatch, preferred, MediaTypeRaw)
}

// MatchConfiguration reports whether config is acceptable under the offer of
// the same media type. Every offered parameter must be present in config with
// a value from the offered set, and config may not carry parameters the offer
// does not name.
func MatchConfiguration(offered []Capability, config Capability) bool {
	offer, ok := Find(offered, config.Type)
	if !ok {
		return false
	}

	for _, p := range offer.Params {
		v, ok := config.Get(p.Name)
		if !ok || !p.Value.Contains(v) {
			return false
		}
	}
	for _, p := range config.Params {
		if _, ok := offer.Get(p.Name); !ok {
			return false
		}
	}
	return true
}

// RawOffer advertises uncompressed s16le at the given channel counts and rates
func RawOffer(channels []byte, rates []uint16) Capability {
	return Capability{
		Type: MediaTypeRaw,
		Params: []Param{
			{Name: ParamChannels, Value: Bytes(channels...)},
			{Name: ParamRate, Value: Uint16s(rates...)},
			{Name: ParamFormat, Value: Strings(FormatS16LE)},
		},
	}
}

// OpusOffer advertises Opus decoding to s16le at 48 kHz
func OpusOffer(channels []byte) Capability {
	return Capability{
		Type: MediaTypeOpus,
		Params: []Param{
			{Name: ParamChannels, Value: Bytes(channels...)},
			{Name: ParamRate, Value: Uint16s(48000)},
			{Name: ParamFormat, Value: Strings(FormatS16LE)},
		},
	}
}

// Configuration builds a concrete configuration
func Configuration(mediaType string, channels byte, rate uint16) Capability {
	return Capability{
		Type: mediaType,
		Params: []Param{
			{Name: ParamChannels, Value: Byte(channels)},
			{Name: ParamRate, Value: Uint16(rate)},
			{Name: ParamFormat, Value: String(FormatS16LE)},
		},
	}
}

// PCMParams extracts rate, channel count and sample format from a configuration
func PCMParams(config Capability) (rate int, channels int, format string, err error) {
	r, ok := config.Get(ParamRate)
	if !ok {
		return 0, 0, "", fmt.Errorf("missing %s parameter", ParamRate)
	}
	rv, ok := r.AsUint16()
	if !ok {
		return 0, 0, "", fmt.Errorf("%s must be a uint16, got %s", ParamRate, r.Kind().Signature())
	}

	ch, ok := config.Get(ParamChannels)
	if !ok {
		return 0, 0, "", fmt.Errorf("missing %s parameter", ParamChannels)
	}
	cv, ok := ch.AsByte()
	if !ok {
		return 0, 0, "", fmt.Errorf("%s must be a byte, got %s", ParamChannels, ch.Kind().Signature())
	}

	f, ok := config.Get(ParamFormat)
	if !ok {
		return 0, 0, "", fmt.Errorf("missing %s parameter", ParamFormat)
	}
	fv, ok := f.AsString()
	if !ok {
		return 0, 0, "", fmt.Errorf("%s must be a string, got %s", ParamFormat, f.Kind().Signature())
	}

	return int(rv), int(cv), fv, nil
}
