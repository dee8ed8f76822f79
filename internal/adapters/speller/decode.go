// Package speller receives characters typed on an Intendix P300 speller and
// assembles them into phrases.
package speller

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// stringMarker prefixes a length-prefixed UTF-8 string in the .NET
	// binary serialization the speller broadcasts.
	stringMarker = 0x06
	// tailGuard is how many trailing bytes are never scanned for a marker.
	tailGuard = 50
	// characterIndex is the position of the typed character among the
	// strings of a board item.
	characterIndex = 2
	// PhraseTerminator completes a phrase.
	PhraseTerminator = "!"
)

const allowedPunctuation = "! .,?;"

// Strings returns every length-prefixed string found in packet. Each marker
// byte is tried, including those that fall inside an earlier string.
func Strings(packet []byte) []string {
	var out []string
	for i := 0; i < len(packet)-tailGuard; i++ {
		if packet[i] != stringMarker {
			continue
		}
		if s, ok := readString(packet, i); ok {
			out = append(out, s)
		}
	}
	return out
}

func readString(packet []byte, at int) (string, bool) {
	at++
	if at >= len(packet) {
		return "", false
	}
	n := int(packet[at])
	at++
	if at+n > len(packet) {
		return "", false
	}
	b := packet[at : at+n]
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// Decode extracts the typed character from a board item packet.
func Decode(packet []byte) (string, error) {
	found := Strings(packet)
	if len(found) <= characterIndex {
		return "", fmt.Errorf("%w: %d strings", ErrNoCharacter, len(found))
	}
	char := strings.TrimSpace(found[characterIndex])
	if char == "" || !(isAlphanumeric(char) || isPunctuation(char)) {
		return "", fmt.Errorf("%w: %q", ErrNoCharacter, char)
	}
	return char, nil
}

// isPunctuation reports whether s is exactly one allowed punctuation rune.
func isPunctuation(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && strings.ContainsRune(allowedPunctuation, r)
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// Assembler accumulates characters until the terminator arrives.
type Assembler struct {
	buf strings.Builder
}

// Add appends char. When char contains the terminator the phrase so far is
// returned without terminators and the buffer is cleared.
func (a *Assembler) Add(char string) (string, bool) {
	a.buf.WriteString(char)
	if !strings.Contains(char, PhraseTerminator) {
		return "", false
	}
	phrase := strings.ReplaceAll(a.buf.String(), PhraseTerminator, "")
	a.buf.Reset()
	return phrase, true
}

// Pending returns the characters received since the last phrase.
func (a *Assembler) Pending() string { return a.buf.String() }

// Reset drops any partial phrase.
func (a *Assembler) Reset() { a.buf.Reset() }
