// Package tagger marks model reasoning spans in a streamed response so the
// page can render them as collapsible blocks.
//
// The backend brackets reasoning with <think> and </think>. While a
// response streams, reasoning is wrapped in an expanded block; once the
// stream ends every block is collapsed.
package tagger

import (
	"regexp"
	"strings"
)

// Markers emitted by the backend.
const (
	StartMarker = "<think>"
	EndMarker   = "</think>"
)

// Wrappers written in place of the markers.
const (
	OpenWrapper   = "<div class='thinking' data-state='open'>"
	ClosedWrapper = "<div class='thinking' data-state='closed'>"
	EndWrapper    = "</div>"
)

var markers = [...]string{StartMarker, EndMarker}

// Tagger applies the open-transform to a stream of chunks. A chunk tail
// that could still grow into a marker is held until the next chunk
// settles it, so markers split across chunks are recognised.
//
// The zero value is ready to use. A Tagger is not safe for concurrent use.
type Tagger struct {
	held   string
	inSpan bool
}

// Push tags one chunk and returns the text that is safe to display.
func (t *Tagger) Push(chunk string) string {
	buf := t.held + chunk
	t.held = ""

	var out strings.Builder
	for {
		i, marker := nextMarker(buf)
		if i < 0 {
			break
		}
		out.WriteString(buf[:i])
		if marker == StartMarker {
			out.WriteString(OpenWrapper)
			t.inSpan = true
		} else {
			out.WriteString(EndWrapper)
			t.inSpan = false
		}
		buf = buf[i+len(marker):]
	}

	n := partialSuffix(buf)
	out.WriteString(buf[:len(buf)-n])
	t.held = buf[len(buf)-n:]

	return out.String()
}

// Flush returns held-back text verbatim. It never turned into a marker.
func (t *Tagger) Flush() string {
	held := t.held
	t.held = ""
	return held
}

// Pending reports whether text is being held back.
func (t *Tagger) Pending() bool {
	return t.held != ""
}

// InSpan reports whether the stream is currently inside a reasoning span.
func (t *Tagger) InSpan() bool {
	return t.inSpan
}

// Finish completes an accumulated stream: held text is appended, a span
// left open by a truncated stream is terminated, and every block is
// collapsed.
func (t *Tagger) Finish(accumulated string) string {
	text := accumulated + t.Flush()
	if t.inSpan {
		text += EndWrapper
		t.inSpan = false
	}
	return Close(text)
}

// Reset discards held text and span state.
func (t *Tagger) Reset() {
	t.held = ""
	t.inSpan = false
}

// Close is the close-transform: every expanded block is collapsed. Raw
// markers that were never tagged are converted as well.
func Close(text string) string {
	text = strings.ReplaceAll(text, StartMarker, ClosedWrapper)
	text = strings.ReplaceAll(text, EndMarker, EndWrapper)
	return strings.ReplaceAll(text, OpenWrapper, ClosedWrapper)
}

// nextMarker finds the earliest marker in s.
func nextMarker(s string) (int, string) {
	start := strings.Index(s, StartMarker)
	end := strings.Index(s, EndMarker)

	switch {
	case start < 0 && end < 0:
		return -1, ""
	case end < 0, start >= 0 && start < end:
		return start, StartMarker
	default:
		return end, EndMarker
	}
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of a marker.
func partialSuffix(s string) int {
	longest := 0
	for _, m := range markers {
		for n := len(m) - 1; n > longest; n-- {
			if strings.HasSuffix(s, m[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}

// Parts is tagged text split into its reasoning and answer.
type Parts struct {
	Reasoning string
	Answer    string
}

var blockRegex = regexp.MustCompile(`(?s)(?:<div class='thinking' data-state='(?:open|closed)'>|<think>)(.*?)(?:</div>|</think>)`)

// Split separates reasoning blocks from answer text. Multiple reasoning
// blocks are joined with a blank line.
func Split(text string) Parts {
	matches := blockRegex.FindAllStringSubmatch(text, -1)

	var reasoning []string
	for _, m := range matches {
		if r := strings.TrimSpace(m[1]); r != "" {
			reasoning = append(reasoning, r)
		}
	}

	return Parts{
		Reasoning: strings.Join(reasoning, "\n\n"),
		Answer:    strings.TrimSpace(blockRegex.ReplaceAllString(text, "")),
	}
}
