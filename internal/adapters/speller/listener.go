package speller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

const (
	// DefaultAddr is where the speller broadcasts board items.
	DefaultAddr = "127.0.0.1:1000"
	// maxPacket is the largest board item datagram accepted.
	maxPacket      = 12264
	pollInterval   = 250 * time.Millisecond
	phraseBacklog  = 8
	defaultTimeout = 2 * time.Minute
)

// Listener receives speller datagrams and publishes completed phrases.
type Listener struct {
	addr    string
	logger  logger.Logger
	phrases chan string

	mu        sync.Mutex
	conn      net.PacketConn
	asm       Assembler
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Listener) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewListener creates a listener for addr; an empty addr uses DefaultAddr.
func NewListener(addr string, opts ...Option) *Listener {
	if addr == "" {
		addr = DefaultAddr
	}
	l := &Listener{
		addr:    addr,
		phrases: make(chan string, phraseBacklog),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("speller")
	}
	return l
}

// Bind opens the UDP socket. Run binds on demand when Bind was not called.
func (l *Listener) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("speller listen %s: %w", l.addr, err)
	}
	l.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Phrases delivers completed phrases.
func (l *Listener) Phrases() <-chan string { return l.phrases }

// Run reads datagrams until ctx ends or the listener is closed.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Bind(); err != nil {
		return err
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	l.logger.Info(ctx, "speller listening", logger.String("addr", conn.LocalAddr().String()))
	buf := make([]byte, maxPacket)
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return nil
		case <-l.done:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			metrics.RecordErrorByComponent("speller", "read_failed")
			return fmt.Errorf("speller read: %w", err)
		}
		l.handle(ctx, buf[:n], from)
	}
}

func (l *Listener) handle(ctx context.Context, packet []byte, from net.Addr) {
	char, err := Decode(packet)
	if err != nil {
		metrics.RecordSpellerPacket("invalid")
		l.logger.Debug(ctx, "ignoring speller packet",
			logger.String("from", from.String()),
			logger.Int("bytes", len(packet)),
			logger.Error(err))
		return
	}
	metrics.RecordSpellerPacket("ok")

	l.mu.Lock()
	phrase, done := l.asm.Add(char)
	pending := l.asm.Pending()
	l.mu.Unlock()

	if !done {
		l.logger.Debug(ctx, "speller character", logger.String("char", char), logger.String("buffer", pending))
		return
	}
	metrics.RecordSpellerPhrase()
	l.logger.Info(ctx, "speller phrase complete", logger.String("phrase", phrase))
	select {
	case l.phrases <- phrase:
	default:
		l.logger.Warn(ctx, "dropping speller phrase, nobody is reading", logger.String("phrase", phrase))
	}
}

// Next waits for the next phrase. A non-positive timeout uses two minutes.
// Partial input and phrases left over from earlier are discarded first.
func (l *Listener) Next(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	l.mu.Lock()
	l.asm.Reset()
	l.mu.Unlock()
	for drained := false; !drained; {
		select {
		case <-l.phrases:
		default:
			drained = true
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-l.phrases:
		return p, nil
	case <-l.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", context.DeadlineExceeded
	}
}

// Close stops Run and releases the socket.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.conn != nil {
			err = l.conn.Close()
		}
	})
	return err
}
