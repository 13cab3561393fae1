// Package amiproto implements the line-oriented AMI wire format: frames of
// "Name: Value" header lines terminated by a blank CRLF line.
package amiproto

import (
	"bufio"
	"io"
	"strings"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

const (
	// Terminator ends every protocol line and, standing alone, every frame.
	Terminator = "\r\n"

	// Greeting is the banner line an upstream server sends on connect.
	// It is not header-formatted and arrives before any frame.
	Greeting = "Asterisk Call Manager/1.1" + Terminator
)

// Decoder reads AMI frames from one connection. It owns the buffered reader
// for the stream so bytes read ahead of a frame boundary are never lost
// between calls.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadFrame reads lines until a lone terminator completes the frame. Lines
// containing a colon are split on the first colon into a trimmed header name
// and value; a later duplicate name overwrites the earlier one. Lines without
// a colon are appended verbatim to the message rest, terminator included.
//
// With first set, reading stops after one line; the greeting banner is the
// only message read this way.
//
// The accumulated message is always returned. A nil error means the frame
// was cleanly terminated; otherwise err carries the stream error (io.EOF
// included) and the message holds whatever arrived before it. The caller
// decides whether a short frame means the connection is gone.
func (d *Decoder) ReadFrame(first bool) (*model.Message, error) {
	msg := model.NewMessage()
	for {
		line, err := d.r.ReadString('\n')
		if line == Terminator {
			return msg, nil
		}
		if line != "" {
			if name, value, ok := strings.Cut(line, ":"); ok {
				msg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
			} else {
				msg.Rest += line
			}
		}
		if err != nil {
			return msg, err
		}
		if first {
			return msg, nil
		}
	}
}
