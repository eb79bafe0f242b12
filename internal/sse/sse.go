// Package sse decodes the data payloads of a text/event-stream body.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Decoder reads events from an event stream. Only data fields are kept.
type Decoder struct {
	r   *bufio.Reader
	buf []string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the data of the next event, with multiple data lines joined by "\n".
// It returns io.EOF once the stream is exhausted and nothing is pending.
func (d *Decoder) Next() (string, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		line = strings.TrimRight(line, " \t\r\n")

		switch {
		case line == "":
			if len(d.buf) > 0 {
				return d.flush(), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case line == "data":
			d.buf = append(d.buf, "")
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			d.buf = append(d.buf, strings.TrimPrefix(v, " "))
		}

		if err == io.EOF {
			if len(d.buf) > 0 {
				return d.flush(), nil
			}
			return "", io.EOF
		}
	}
}

func (d *Decoder) flush() string {
	out := strings.Join(d.buf, "\n")
	d.buf = d.buf[:0]
	return out
}
