package speller_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/bci/internal/adapters/speller"
	logging "github.com/okian/bci/pkg/logger"
)

// boardItem mimics a serialized board item: a header, three strings and the
// trailing record data.
func boardItem(strs ...string) []byte {
	packet := []byte{0x00, 0x01, 0x00, 0x00, 0x00}
	for _, s := range strs {
		packet = append(packet, 0x06, byte(len(s)))
		packet = append(packet, s...)
	}
	return append(packet, make([]byte, 60)...)
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		packet []byte
		want   string
		ok     bool
	}{
		{"letter", boardItem("Board", "Item1", "H"), "H", true},
		{"digit", boardItem("Board", "Item1", "7"), "7", true},
		{"word", boardItem("Board", "Item1", "Hello"), "Hello", true},
		{"terminator", boardItem("Board", "Item1", "!"), "!", true},
		{"padded", boardItem("Board", "Item1", " ? "), "?", true},
		{"space only", boardItem("Board", "Item1", " "), "", false},
		{"symbol", boardItem("Board", "Item1", "#"), "", false},
		{"two punctuation marks", boardItem("Board", "Item1", ".,"), "", false},
		{"punctuation run", boardItem("Board", "Item1", "?;"), "", false},
		{"letter and punctuation", boardItem("Board", "Item1", "A!"), "", false},
		{"too few strings", boardItem("Board", "Item1"), "", false},
		{"short packet", []byte{0x06, 0x01, 'A'}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := speller.Decode(tc.packet)
			if !tc.ok {
				assert.True(t, errors.Is(err, speller.ErrNoCharacter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStrings(t *testing.T) {
	// A marker inside a string is tried too.
	packet := boardItem("a\x06\x01b", "c")
	assert.Equal(t, []string{"a\x06\x01b", "b", "c"}, speller.Strings(packet))

	bad := boardItem("x", "\xff\xfe", "y")
	assert.Equal(t, []string{"x", "y"}, speller.Strings(bad))
}

func TestAssembler(t *testing.T) {
	var a speller.Assembler
	for _, c := range []string{"H", "O", "L", "A"} {
		_, done := a.Add(c)
		assert.False(t, done)
	}
	assert.Equal(t, "HOLA", a.Pending())

	phrase, done := a.Add("!")
	assert.True(t, done)
	assert.Equal(t, "HOLA", phrase)
	assert.Empty(t, a.Pending())

	phrase, done = a.Add("!")
	assert.True(t, done)
	assert.Empty(t, phrase)
}

func TestListener(t *testing.T) {
	_ = logging.Init()

	l := speller.NewListener("127.0.0.1:0")
	require.NoError(t, l.Bind())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	send := func(packet []byte) {
		_, err := conn.Write(packet)
		require.NoError(t, err)
	}

	next := make(chan string, 1)
	go func() {
		p, err := l.Next(ctx, 5*time.Second)
		if err == nil {
			next <- p
		}
	}()
	// Give Next time to clear old state before typing.
	time.Sleep(50 * time.Millisecond)

	for _, c := range []string{"H", "I", "#", "!"} {
		send(boardItem("Board", "Item", c))
		time.Sleep(10 * time.Millisecond)
	}
	send([]byte("noise"))

	select {
	case p := <-next:
		assert.Equal(t, "HI", p)
	case <-time.After(5 * time.Second):
		t.Fatal("no phrase received")
	}

	_, err = l.Next(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, l.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	_, err = l.Next(context.Background(), time.Second)
	assert.ErrorIs(t, err, speller.ErrClosed)
}
