package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThinkingSplicerRoutesCompleteFences(t *testing.T) {
	var s ThinkingSplicer
	thinking, text := s.Feed("<thinking>reasoning here</thinking>final answer")
	assert.Equal(t, "reasoning here", thinking)
	assert.Equal(t, "final answer", text)
}

func TestThinkingSplicerHoldsPartialOpeningTag(t *testing.T) {
	var s ThinkingSplicer
	thinking, text := s.Feed("hello <thin")
	assert.Empty(t, thinking)
	assert.Equal(t, "hello ", text)

	thinking, text = s.Feed("king>body</thinking>tail")
	assert.Equal(t, "body", thinking)
	assert.Equal(t, "tail", text)
}

func TestThinkingSplicerFlushEmitsTrailingPartialAsText(t *testing.T) {
	var s ThinkingSplicer
	_, _ = s.Feed("plain text <th")
	thinking, text := s.Flush()
	assert.Empty(t, thinking)
	assert.Equal(t, "<th", text)
}

func TestThinkingSplicerAcrossManyChunks(t *testing.T) {
	var s ThinkingSplicer
	var thinking, text string
	for _, chunk := range []string{"<th", "inking>", "step one. ", "step two.", "</thi", "nking>", "done"} {
		th, tx := s.Feed(chunk)
		thinking += th
		text += tx
	}
	assert.Equal(t, "step one. step two.", thinking)
	assert.Equal(t, "done", text)
}
