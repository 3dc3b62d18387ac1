package streaming

import "strings"

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
)

// thinkingState is the state of the buffered tag splicer.
type thinkingState int

const (
	stateOutside thinkingState = iota
	stateInside
)

// ThinkingSplicer buffers text emitted via prompt-injected thinking and
// routes it to either a thinking stream or a text stream, never emitting a
// character until it is certain it is not part of a partial `<thinking>` or
// `</thinking>` fence.
type ThinkingSplicer struct {
	state thinkingState
	buf   strings.Builder
}

// Feed consumes one chunk of raw text, returning the thinking-routed and
// text-routed portions that can be safely emitted now.
func (s *ThinkingSplicer) Feed(chunk string) (thinking, text string) {
	s.buf.WriteString(chunk)
	return s.drain(false)
}

// Flush is called at stream end: whatever remains in the buffer is emitted
// honoring the current state (a trailing partial fence is treated as
// literal text, since no more input can complete it).
func (s *ThinkingSplicer) Flush() (thinking, text string) {
	return s.drain(true)
}

func (s *ThinkingSplicer) drain(final bool) (thinking, text string) {
	for {
		buffered := s.buf.String()
		switch s.state {
		case stateOutside:
			idx := strings.Index(buffered, thinkingOpenTag)
			if idx >= 0 {
				text += buffered[:idx]
				s.buf.Reset()
				s.buf.WriteString(buffered[idx+len(thinkingOpenTag):])
				s.state = stateInside
				continue
			}
			safe := safeEmitLen(buffered, thinkingOpenTag, final)
			text += buffered[:safe]
			s.buf.Reset()
			s.buf.WriteString(buffered[safe:])
			return thinking, text

		case stateInside:
			idx := strings.Index(buffered, thinkingCloseTag)
			if idx >= 0 {
				thinking += buffered[:idx]
				s.buf.Reset()
				s.buf.WriteString(buffered[idx+len(thinkingCloseTag):])
				s.state = stateOutside
				continue
			}
			safe := safeEmitLen(buffered, thinkingCloseTag, final)
			thinking += buffered[:safe]
			s.buf.Reset()
			s.buf.WriteString(buffered[safe:])
			return thinking, text

		default:
			return thinking, text
		}
	}
}

// safeEmitLen returns how many leading bytes of buffered are guaranteed not
// to be the prefix of fence, so they can be emitted immediately. At final
// flush, the whole buffer is safe since no further input can complete a
// fence.
func safeEmitLen(buffered, fence string, final bool) int {
	if final {
		return len(buffered)
	}
	maxOverlap := len(fence) - 1
	if maxOverlap > len(buffered) {
		maxOverlap = len(buffered)
	}
	for overlap := maxOverlap; overlap > 0; overlap-- {
		if strings.HasSuffix(buffered, fence[:overlap]) {
			return len(buffered) - overlap
		}
	}
	return len(buffered)
}
