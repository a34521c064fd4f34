// Package buffer implements single-producer multi-consumer ring buffers
// which back stream edges.
//
// Storage is mirrored: every item is kept twice, capacity items apart, so
// both the writable region and every reader window are contiguous slices
// regardless of wrap-around. Cursors are absolute item counts.
package buffer

import (
	"fmt"
	"sort"

	"github.com/pipelined/flowgraph"
)

// Buffer is a ring buffer of one stream output port. It's not safe for
// concurrent use: the producer and all consumers of a buffer are scheduled
// by the same goroutine.
type Buffer struct {
	itemsize int
	capacity int
	data     []byte
	write    int64
	readers  []*Reader
	tags     []flowgraph.Tag
	done     bool
}

// New allocates a buffer of capacity items of itemsize bytes.
func New(itemsize, capacity int) *Buffer {
	if itemsize <= 0 || capacity <= 0 {
		panic(fmt.Sprintf("buffer: invalid itemsize %d or capacity %d", itemsize, capacity))
	}
	return &Buffer{
		itemsize: itemsize,
		capacity: capacity,
		data:     make([]byte, 2*capacity*itemsize),
	}
}

// Capacity returns the number of items that fit bufferBytes, but not less
// than min.
func Capacity(bufferBytes, itemsize, min int) int {
	n := bufferBytes / itemsize
	if n < min {
		return min
	}
	return n
}

// ItemSize returns size of one item in bytes.
func (b *Buffer) ItemSize() int { return b.itemsize }

// Capacity returns the capacity in items.
func (b *Buffer) Capacity() int { return b.capacity }

// Written returns the write cursor: number of items ever produced.
func (b *Buffer) Written() uint64 { return uint64(b.write) }

// Readers returns attached readers.
func (b *Buffer) Readers() []*Reader { return b.readers }

// AddReader attaches a reader with the history. Without zero padding the
// first history-1 items are look-back only and never count as available.
func (b *Buffer) AddReader(history int, zeroPad bool) *Reader {
	if history < 1 {
		history = 1
	}
	r := &Reader{
		buf:     b,
		history: history,
	}
	if !zeroPad {
		r.read = b.write + int64(history-1)
	} else {
		r.read = b.write
	}
	b.readers = append(b.readers, r)
	return r
}

// Space returns the number of items that can be produced without
// overwriting data still needed by any open reader.
func (b *Buffer) Space() int {
	oldest := b.write
	for _, r := range b.readers {
		if r.closed {
			continue
		}
		if start := r.start(); start < oldest {
			oldest = start
		}
	}
	return b.capacity - int(b.write-oldest)
}

// Window returns the writable region for n items. n must not exceed Space.
func (b *Buffer) Window(n int) []byte {
	start := b.index(b.write) * b.itemsize
	return b.data[start : start+n*b.itemsize]
}

// Produce commits n items written into the window.
func (b *Buffer) Produce(n int) error {
	if space := b.Space(); n < 0 || n > space {
		return fmt.Errorf("%w: %d items, space %d", flowgraph.ErrOverProduction, n, space)
	}
	b.mirror(b.index(b.write), n)
	b.write += int64(n)
	b.prune()
	return nil
}

// mirror copies n items written at physical index i to the other half.
func (b *Buffer) mirror(i, n int) {
	size := b.itemsize
	for n > 0 {
		if i < b.capacity {
			m := min(n, b.capacity-i)
			copy(b.data[(i+b.capacity)*size:], b.data[i*size:(i+m)*size])
			i, n = i+m, n-m
			continue
		}
		copy(b.data[(i-b.capacity)*size:], b.data[i*size:(i+n)*size])
		return
	}
}

// AddTag stores a tag. Tags are kept sorted by offset.
func (b *Buffer) AddTag(t flowgraph.Tag) {
	i := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset > t.Offset
	})
	b.tags = append(b.tags, flowgraph.Tag{})
	copy(b.tags[i+1:], b.tags[i:])
	b.tags[i] = t
}

// Tags returns tags with offsets in [from, to).
func (b *Buffer) Tags(from, to uint64) []flowgraph.Tag {
	lo := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset >= from
	})
	hi := sort.Search(len(b.tags), func(i int) bool {
		return b.tags[i].Offset >= to
	})
	if lo == hi {
		return nil
	}
	return append([]flowgraph.Tag(nil), b.tags[lo:hi]...)
}

// prune drops tags that every open reader has consumed. Without open
// readers every produced tag is dropped.
func (b *Buffer) prune() {
	oldest := b.write
	for _, r := range b.readers {
		if !r.closed && r.read < oldest {
			oldest = r.read
		}
	}
	i := sort.Search(len(b.tags), func(i int) bool {
		return int64(b.tags[i].Offset) >= oldest
	})
	if i > 0 {
		b.tags = append(b.tags[:0], b.tags[i:]...)
	}
}

// SetDone marks that the producer finished.
func (b *Buffer) SetDone() { b.done = true }

// Done reports whether the producer finished.
func (b *Buffer) Done() bool { return b.done }

// Abandoned reports whether the buffer had readers and every one of them is
// closed, so produced items will never be read.
func (b *Buffer) Abandoned() bool {
	if len(b.readers) == 0 {
		return false
	}
	for _, r := range b.readers {
		if !r.closed {
			return false
		}
	}
	return true
}

func (b *Buffer) index(pos int64) int {
	c := int64(b.capacity)
	return int(((pos % c) + c) % c)
}

// Reader is a consumer cursor into a buffer.
type Reader struct {
	buf     *Buffer
	read    int64
	history int
	closed  bool
}

// Buffer returns the buffer the reader reads.
func (r *Reader) Buffer() *Buffer { return r.buf }

// History returns number of items visible in every window.
func (r *Reader) History() int { return r.history }

// Read returns the read cursor: absolute index of the next new item.
func (r *Reader) Read() uint64 { return uint64(r.read) }

// Available returns the number of new items to read.
func (r *Reader) Available() int {
	if n := r.buf.write - r.read; n > 0 {
		return int(n)
	}
	return 0
}

// Window returns history-1 look-back items followed by n new items. Items
// before the start of the stream read as zeros.
func (r *Reader) Window(n int) []byte {
	size := r.buf.itemsize
	start := r.buf.index(r.start()) * size
	return r.buf.data[start : start+(r.history-1+n)*size]
}

// Consume advances the read cursor by n items.
func (r *Reader) Consume(n int) error {
	if available := r.Available(); n < 0 || n > available {
		return fmt.Errorf("%w: %d items, available %d", flowgraph.ErrOverConsumption, n, available)
	}
	r.read += int64(n)
	r.buf.prune()
	return nil
}

// Tags returns tags attached to the next n new items.
func (r *Reader) Tags(n int) []flowgraph.Tag {
	return r.buf.Tags(uint64(r.read), uint64(r.read+int64(n)))
}

// Done reports whether the producer finished and everything is read.
func (r *Reader) Done() bool {
	return r.buf.done && r.Available() == 0
}

// Close detaches the reader from space accounting. Closed readers never
// hold the producer back.
func (r *Reader) Close() {
	r.closed = true
	r.buf.prune()
}

// Closed reports whether the reader is closed.
func (r *Reader) Closed() bool { return r.closed }

func (r *Reader) start() int64 {
	return r.read - int64(r.history-1)
}
