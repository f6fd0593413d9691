package models

import "fmt"

type DeviceID string

func (id DeviceID) String() string { return string(id) }

type PixelEncoding string

const (
	// BGRA32 is the packed 32-bit encoding every stream is negotiated to.
	BGRA32 PixelEncoding = "BGRA32"
	// RGBA32 is the display encoding handed to the Frame Sink.
	RGBA32 PixelEncoding = "RGBA32"
)

func (e PixelEncoding) BytesPerPixel() int {
	switch e {
	case BGRA32, RGBA32:
		return 4
	default:
		return 0
	}
}

type Format struct {
	Width    uint32        `json:"width"`
	Height   uint32        `json:"height"`
	Encoding PixelEncoding `json:"encoding"`
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.Encoding)
}

// FrameSize is the byte length of one packed frame, or 0 for non-packed encodings.
func (f Format) FrameSize() int {
	return int(f.Width) * int(f.Height) * f.Encoding.BytesPerPixel()
}

type RepresentationKind int

const (
	RepresentationUnknown RepresentationKind = iota
	RepresentationBoolean
	RepresentationInteger
	RepresentationMenu
)

func (k RepresentationKind) String() string {
	switch k {
	case RepresentationBoolean:
		return "bool"
	case RepresentationInteger:
		return "int"
	case RepresentationMenu:
		return "menu"
	default:
		return "unknown"
	}
}

type MenuItem struct {
	Index int64  `json:"index"`
	Label string `json:"label"`
}

type Representation struct {
	Kind    RepresentationKind `json:"kind"`
	Min     int64              `json:"min,omitempty"`
	Max     int64              `json:"max,omitempty"`
	Step    int64              `json:"step,omitempty"`
	Default int64              `json:"default,omitempty"`
	Items   []MenuItem         `json:"items,omitempty"`
}

type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueBoolean
	ValueInteger
)

// ControlValue is tagged by Kind; only the matching field is meaningful.
type ControlValue struct {
	Kind    ValueKind `json:"kind"`
	Boolean bool      `json:"boolean,omitempty"`
	Integer int64     `json:"integer,omitempty"`
}

func BoolValue(b bool) ControlValue { return ControlValue{Kind: ValueBoolean, Boolean: b} }
func IntValue(i int64) ControlValue { return ControlValue{Kind: ValueInteger, Integer: i} }
func (v ControlValue) IsSet() bool { return v.Kind != ValueNone }

func (v ControlValue) String() string {
	switch v.Kind {
	case ValueBoolean:
		if v.Boolean {
			return "1"
		}
		return "0"
	case ValueInteger:
		return fmt.Sprintf("%d", v.Integer)
	default:
		return "unset"
	}
}

type Control struct {
	ID             uint32         `json:"id"`
	Name           string         `json:"name"`
	Representation Representation `json:"representation"`
	Value          ControlValue   `json:"value"`
}

func (c Control) String() string { return c.Name }

// Accepts reports whether v fits the control's representation.
func (c Control) Accepts(v ControlValue) bool {
	switch c.Representation.Kind {
	case RepresentationBoolean:
		return v.Kind == ValueBoolean
	case RepresentationInteger, RepresentationMenu:
		if v.Kind != ValueInteger {
			return false
		}
		if c.Representation.Max > c.Representation.Min {
			return v.Integer >= c.Representation.Min && v.Integer <= c.Representation.Max
		}
		return true
	default:
		return v.Kind != ValueNone
	}
}
