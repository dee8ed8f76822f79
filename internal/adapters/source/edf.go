package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OpenPSG/edf"
)

// EDF replays selected signals of an EDF/EDF+ recording, one value per
// signal per call.
type EDF struct {
	file     io.ReadSeekCloser
	reader   *edf.Reader
	channels []int
	loop     bool
	signals  []*edf.SignalReader
	one      []float64
}

// OpenEDF opens the recording at path. channels lists the signal indices
// to replay, in buffer channel order.
func OpenEDF(path string, channels []int, loop bool) (*EDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r, err := NewEDF(f, channels, loop)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// NewEDF reads the header from rs and prepares a reader per channel.
func NewEDF(rs io.ReadSeekCloser, channels []int, loop bool) (*EDF, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	reader, err := edf.Open(rs)
	if err != nil {
		return nil, fmt.Errorf("read edf header: %w", err)
	}
	e := &EDF{
		file:     rs,
		reader:   reader,
		channels: append([]int(nil), channels...),
		loop:     loop,
		one:      make([]float64, 1),
	}
	if err := e.rewind(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *EDF) rewind() error {
	e.signals = e.signals[:0]
	for _, idx := range e.channels {
		sr, err := e.reader.Signal(idx)
		if err != nil {
			return fmt.Errorf("edf signal %d: %w", idx, err)
		}
		e.signals = append(e.signals, sr)
	}
	return nil
}

// ReadSample returns the next value of every selected signal. At the end of
// the recording it starts over when looping and returns io.EOF otherwise.
func (e *EDF) ReadSample(ctx context.Context) ([]float64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := e.read()
		if err == nil {
			return values, nil
		}
		if !errors.Is(err, io.EOF) || !e.loop {
			return nil, err
		}
		if err := e.rewind(); err != nil {
			return nil, err
		}
	}
	return nil, io.EOF
}

func (e *EDF) read() ([]float64, error) {
	values := make([]float64, len(e.signals))
	for i, sr := range e.signals {
		n, err := sr.Read(e.one)
		if n == 1 {
			values[i] = e.one[0]
			continue
		}
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	return values, nil
}

// Close closes the underlying file.
func (e *EDF) Close() error { return e.file.Close() }
