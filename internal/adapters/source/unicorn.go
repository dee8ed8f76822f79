package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/okian/bci/pkg/metrics"
)

// Unicorn Hybrid Black frame layout.
const (
	FrameSize       = 45
	UnicornChannels = 8

	eegOffset     = 3
	accelOffset   = 27
	gyroOffset    = 33
	counterOffset = 39

	// microvoltsPerCount converts a 24-bit EEG reading to microvolts.
	microvoltsPerCount = 4500000.0 / 50331642.0
	accelPerCount      = 1.0 / 4096.0
	gyroPerCount       = 1.0 / 32.8

	unicornReadTimeout = 100 * time.Millisecond
	readChunk          = 512
)

var (
	frameHeader = []byte{0xC0, 0x00}
	frameFooter = []byte{0x0D, 0x0A}

	startAcquisition = []byte{0x61, 0x7C, 0x87}
	stopAcquisition  = []byte{0x63, 0x5C, 0xC5}
)

// Frame is one decoded Unicorn packet.
type Frame struct {
	BatteryPercent float64
	EEG            [UnicornChannels]float64
	Accel          [3]float64
	Gyro           [3]float64
	Counter        uint32
}

// DecodeFrame parses a 45-byte frame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(b))
	}
	if !bytes.Equal(b[:2], frameHeader) || !bytes.Equal(b[FrameSize-2:], frameFooter) {
		return f, fmt.Errorf("%w: bad header or footer", ErrBadFrame)
	}

	f.BatteryPercent = float64(b[2]&0x0F) * 100 / 15
	for ch := 0; ch < UnicornChannels; ch++ {
		o := eegOffset + ch*3
		raw := int32(b[o])<<16 | int32(b[o+1])<<8 | int32(b[o+2])
		if raw&0x800000 != 0 {
			raw -= 1 << 24
		}
		f.EEG[ch] = float64(raw) * microvoltsPerCount
	}
	for i := 0; i < 3; i++ {
		f.Accel[i] = float64(int16(binary.LittleEndian.Uint16(b[accelOffset+2*i:]))) * accelPerCount
		f.Gyro[i] = float64(int16(binary.LittleEndian.Uint16(b[gyroOffset+2*i:]))) * gyroPerCount
	}
	f.Counter = binary.LittleEndian.Uint32(b[counterOffset:])
	return f, nil
}

// Unicorn reads EEG frames from a Unicorn headset link.
type Unicorn struct {
	port    io.ReadWriteCloser
	chunk   []byte
	pending []byte
	last    uint32
	started bool
}

// OpenUnicorn opens the serial device at path and starts acquisition.
func OpenUnicorn(path string, baud int) (*Unicorn, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(unicornReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	u, err := NewUnicorn(port)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return u, nil
}

// NewUnicorn sends the start command over an already open link.
func NewUnicorn(port io.ReadWriteCloser) (*Unicorn, error) {
	if _, err := port.Write(startAcquisition); err != nil {
		return nil, fmt.Errorf("start acquisition: %w", err)
	}
	return &Unicorn{
		port:    port,
		chunk:   make([]byte, readChunk),
		started: true,
	}, nil
}

// ReadSample returns the EEG channels of the next valid frame. Bytes that do
// not form a frame are skipped until the next header.
func (u *Unicorn) ReadSample(ctx context.Context) ([]float64, error) {
	for {
		if f, ok := u.next(); ok {
			out := make([]float64, UnicornChannels)
			copy(out, f.EEG[:])
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// A serial read timeout returns zero bytes and no error.
		n, err := u.port.Read(u.chunk)
		if n > 0 {
			u.pending = append(u.pending, u.chunk[:n]...)
		}
		if err != nil {
			return nil, err
		}
	}
}

// Counter returns the counter of the last decoded frame.
func (u *Unicorn) Counter() uint32 { return u.last }

func (u *Unicorn) next() (Frame, bool) {
	for {
		i := bytes.Index(u.pending, frameHeader)
		if i < 0 {
			if n := len(u.pending); n > 0 && u.pending[n-1] == frameHeader[0] {
				u.pending = append(u.pending[:0], frameHeader[0])
			} else {
				u.pending = u.pending[:0]
			}
			return Frame{}, false
		}
		if i > 0 {
			u.pending = append(u.pending[:0], u.pending[i:]...)
		}
		if len(u.pending) < FrameSize {
			return Frame{}, false
		}
		f, err := DecodeFrame(u.pending[:FrameSize])
		if err != nil {
			metrics.RecordSourceReadError("unicorn")
			u.pending = append(u.pending[:0], u.pending[1:]...)
			continue
		}
		u.pending = append(u.pending[:0], u.pending[FrameSize:]...)
		u.last = f.Counter
		return f, true
	}
}

// Close stops acquisition and closes the link.
func (u *Unicorn) Close() error {
	var stopErr error
	if u.started {
		_, stopErr = u.port.Write(stopAcquisition)
		u.started = false
	}
	if err := u.port.Close(); err != nil {
		return err
	}
	if stopErr != nil {
		return fmt.Errorf("stop acquisition: %w", stopErr)
	}
	return nil
}
