package llm

import (
	"fmt"
	"io"
	"strings"
)

// snippets accumulates streamed content while echoing it to the console.
type snippets struct {
	b     strings.Builder
	count int
	ended bool
}

func (s *snippets) write(out io.Writer, content string) {
	if content == "" {
		return
	}
	s.count++
	s.b.WriteString(content)
	_, _ = io.WriteString(out, content)
}

// finish terminates the streamed line once.
func (s *snippets) finish(out io.Writer) {
	if s.ended {
		return
	}
	s.ended = true
	fmt.Fprintln(out)
}
