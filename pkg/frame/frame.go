package frame

import (
	"fmt"
	"path/filepath"

	"github.com/abworrall/varstar/pkg/emath"
)

// The Kind of a frame says how many planes of pixel data it has. A raw
// frame holds all three color planes as loaded from the camera; a
// single channel frame holds one, and is what everything downstream
// of channel extraction works with.
type Kind int

const(
	RawMultiChannel Kind = iota
	SingleChannel
)

func (k Kind)String() string {
	switch k {
	case RawMultiChannel: return "raw"
	case SingleChannel:   return "mono"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type ImageType int

const(
	Light ImageType = iota
	Bias
	Dark
	Flat
)

var imageTypeNames = []string{"light", "bias", "dark", "flat"}

func (t ImageType)String() string {
	if t < 0 || int(t) >= len(imageTypeNames) {
		return fmt.Sprintf("imagetype(%d)", int(t))
	}
	return imageTypeNames[t]
}

type Channel int

const(
	Red Channel = iota
	Green
	Blue
	NoChannel // for raw frames, which have all of them
)

var channelNames = []string{"R", "G", "B", "-"}

func (c Channel)String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// ParseChannel maps "r", "G", "green" etc. onto a Channel.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "r", "R", "red":   return Red, nil
	case "g", "G", "green": return Green, nil
	case "b", "B", "blue":  return Blue, nil
	}
	return NoChannel, fmt.Errorf("no channel named '%s'", s)
}

// A Frame is one exposure. Frames are always handled by pointer; the
// pointer is the frame's identity, and the tracker and the star
// catalog key their per-frame data on it.
//
// Calibration may change the pixel values in place; once a frame has
// been handed to a tracker it is never modified again.
type Frame struct {
	Kind          Kind
	Type          ImageType
	Channel       Channel

	Planes      []emath.FloatGrid  // one per color (raw), or exactly one (mono)

	JD            float64  // Julian date of the start of the exposure
	ExposureTime  float64  // seconds
	LoadFilename  string
	Name          string   // serialized name, from a Namer

	BinX, BinY    int
}

// NewMono builds a single channel frame around `pix`.
func NewMono(pix emath.FloatGrid, c Channel, t ImageType) *Frame {
	return &Frame{
		Kind:    SingleChannel,
		Type:    t,
		Channel: c,
		Planes:  []emath.FloatGrid{pix},
		BinX:    1,
		BinY:    1,
	}
}

// NewRaw builds a three-plane frame; the planes are R,G,B.
func NewRaw(r, g, b emath.FloatGrid, t ImageType) *Frame {
	return &Frame{
		Kind:    RawMultiChannel,
		Type:    t,
		Channel: NoChannel,
		Planes:  []emath.FloatGrid{r, g, b},
		BinX:    1,
		BinY:    1,
	}
}

// Pix returns the pixel grid of a single channel frame. Asking a raw
// frame for it is a programming error.
func (f *Frame)Pix() *emath.FloatGrid {
	if f.Kind != SingleChannel {
		panic(fmt.Sprintf("Frame.Pix called on %s frame %s", f.Kind, f))
	}
	return &f.Planes[0]
}

func (f *Frame)Dx() int { return f.Planes[0].Dx() }
func (f *Frame)Dy() int { return f.Planes[0].Dy() }

func (f *Frame)Filename() string {
	return filepath.Base(f.LoadFilename)
}

func (f *Frame)String() string {
	name := f.Name
	if name == "" {
		name = f.Filename()
	}
	str := fmt.Sprintf("Frame[%s %s %s %dx%d", name, f.Kind, f.Type, f.Dx(), f.Dy())
	if f.Kind == SingleChannel {
		str += " " + f.Channel.String()
	}
	if f.JD != 0 {
		str += fmt.Sprintf(" JD%.5f", f.JD)
	}
	if f.ExposureTime != 0 {
		str += fmt.Sprintf(" %gs", f.ExposureTime)
	}
	if f.BinX > 1 || f.BinY > 1 {
		str += fmt.Sprintf(" bin%dx%d", f.BinX, f.BinY)
	}
	return str + "]"
}
