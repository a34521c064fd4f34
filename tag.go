package flowgraph

import "math"

// Tag is a key/value annotation attached to an absolute item offset of a
// stream.
type Tag struct {
	Offset uint64
	Key    string
	Value  any
	Source string
}

// TagPolicy defines how tags on consumed input items map to outputs.
type TagPolicy int

const (
	// TagsAllToAll copies tags from every input to every output.
	TagsAllToAll TagPolicy = iota
	// TagsOneToOne copies tags from input i to output i only.
	TagsOneToOne
	// TagsDontPropagate drops input tags.
	TagsDontPropagate
	// TagsCustom leaves propagation to the block itself.
	TagsCustom
)

func (p TagPolicy) String() string {
	switch p {
	case TagsAllToAll:
		return "all-to-all"
	case TagsOneToOne:
		return "one-to-one"
	case TagsDontPropagate:
		return "dont-propagate"
	case TagsCustom:
		return "custom"
	}
	return "unknown"
}

// Rescale maps an input offset to an output offset for the ratio
// interpolation/decimation.
func Rescale(offset uint64, interpolation, decimation int) uint64 {
	if interpolation == decimation {
		return offset
	}
	return uint64(math.Round(float64(offset) * float64(interpolation) / float64(decimation)))
}
