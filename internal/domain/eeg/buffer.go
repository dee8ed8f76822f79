package eeg

import (
	"fmt"
	"sync"

	"github.com/okian/bci/pkg/metrics"
)

// Buffer is a fixed-capacity ring of samples shared by one producer and
// any number of readers.
type Buffer struct {
	mu       sync.Mutex
	channels int
	// data is laid out slot-major: slot i occupies data[i*channels:(i+1)*channels].
	data  []float64
	seqs  []uint64
	head  int // next slot to write
	count int
	total uint64
}

// NewBuffer allocates a ring for the given channel count and capacity in samples.
func NewBuffer(channels, capacity int) (*Buffer, error) {
	if channels < 1 || capacity < 1 {
		return nil, fmt.Errorf("%w: channels=%d capacity=%d", ErrInvalidBuffer, channels, capacity)
	}
	return &Buffer{
		channels: channels,
		data:     make([]float64, channels*capacity),
		seqs:     make([]uint64, capacity),
	}, nil
}

// Push copies values into the next slot, overwriting the oldest sample once
// the ring is full.
func (b *Buffer) Push(values []float64) (Sample, error) {
	if len(values) != b.channels {
		return Sample{}, fmt.Errorf("%w: got %d want %d", ErrChannelMismatch, len(values), b.channels)
	}

	b.mu.Lock()
	slot := b.head
	copy(b.data[slot*b.channels:(slot+1)*b.channels], values)
	seq := b.total
	b.seqs[slot] = seq
	b.total++
	b.head = (b.head + 1) % len(b.seqs)
	if b.count < len(b.seqs) {
		b.count++
	}
	fill := float64(b.count) / float64(len(b.seqs))
	b.mu.Unlock()

	metrics.RecordSamplePushed()
	metrics.UpdateBufferFill(fill)
	return Sample{Seq: seq, Values: values}, nil
}

// LastN returns the newest n samples as a channel-major epoch, oldest first.
// When fewer than n samples are held the leading positions are zero and the
// epoch is marked Padded.
func (b *Buffer) LastN(n int) Epoch {
	if n < 0 {
		n = 0
	}
	out := make([][]float64, b.channels)
	for ch := range out {
		out[ch] = make([]float64, n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	avail := b.count
	if avail > n {
		avail = n
	}
	pad := n - avail
	capacity := len(b.seqs)
	start := (b.head - avail + capacity) % capacity

	for i := 0; i < avail; i++ {
		slot := (start + i) % capacity
		row := b.data[slot*b.channels : (slot+1)*b.channels]
		for ch, v := range row {
			out[ch][pad+i] = v
		}
	}

	ep := Epoch{Data: out, Padded: pad > 0}
	if avail > 0 {
		ep.FirstSeq = b.seqs[start]
	}
	return ep
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the ring capacity in samples.
func (b *Buffer) Cap() int { return len(b.seqs) }

// Channels returns the channel count.
func (b *Buffer) Channels() int { return b.channels }

// Total returns how many samples have ever been pushed.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
