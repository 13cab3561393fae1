package amiproto

import (
	"io"
	"strings"
)

// Field is one "Name: Value" line of an outbound action.
type Field struct {
	Name  string
	Value string
}

// WriteAction sends one action frame: the Action header, the given fields in
// order, then the blank terminator. The frame is written in a single call so
// a partial frame is never left on the wire by an interleaved writer.
func WriteAction(w io.Writer, action string, fields ...Field) error {
	var b strings.Builder
	b.WriteString("Action: ")
	b.WriteString(action)
	b.WriteString(Terminator)
	for _, f := range fields {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString(Terminator)
	}
	b.WriteString(Terminator)
	_, err := io.WriteString(w, b.String())
	return err
}
