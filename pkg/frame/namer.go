package frame

import "fmt"

// A Namer hands out serialized frame names of the form
// `light_3` (raw) or `light_3_G` (single channel), with a separate
// running index per image type and channel. Each loading session owns
// its own Namer, and passes it to whatever creates frames.
type Namer struct {
	next map[namerKey]int
}

type namerKey struct {
	t ImageType
	c Channel
}

func NewNamer() *Namer {
	return &Namer{next: map[namerKey]int{}}
}

func (n *Namer)Next(t ImageType, c Channel) string {
	k := namerKey{t, c}
	i := n.next[k]
	n.next[k] = i+1

	if c == NoChannel {
		return fmt.Sprintf("%s_%d", t, i)
	}
	return fmt.Sprintf("%s_%d_%s", t, i, c)
}

// Name gives `f` the next name for its type and channel.
func (n *Namer)Name(f *Frame) {
	f.Name = n.Next(f.Type, f.Channel)
}
