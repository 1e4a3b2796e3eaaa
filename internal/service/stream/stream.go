// Package stream delivers a completed answer to a consumer one character at a time.
package stream

import (
	"context"
	"unicode/utf8"
)

// Characters returns a channel that yields every character (rune) of answer in
// order and is closed after the last one, or earlier when ctx is done.
// Each value is the rune's original byte span, so an invalid UTF-8 byte is
// sent as is and the values always concatenate back to answer.
//
// The channel is unbuffered so the producer suspends at each character boundary
// until the consumer is ready. Each call starts an independent sequence; a
// drained channel cannot be replayed.
func Characters(ctx context.Context, answer string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for i := 0; i < len(answer); {
			_, size := utf8.DecodeRuneInString(answer[i:])
			select {
			case out <- answer[i : i+size]:
				i += size
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Collect drains a character channel into a string.
func Collect(ch <-chan string) string {
	var buf []byte
	for c := range ch {
		buf = append(buf, c...)
	}
	return string(buf)
}
