package eventstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	frames := []Frame{
		{EventType: "assistantResponseEvent", ContentType: "application/json", Payload: []byte(`{"content":"po"}`)},
		{EventType: "toolUseEvent", ContentType: "application/json", Payload: []byte(`{"name":"readFile","toolUseId":"tu_1","input":"{\"pa","stop":false}`)},
		{EventType: "reasoningContentEvent", ContentType: "application/json", Payload: []byte(`{"content":"plan"}`)},
		{EventType: "codeReferenceEvent", ContentType: "application/json", Payload: []byte(`{"references":[{"licenseName":"MIT","repository":"r","url":"u"}]}`)},
		{EventType: "meteringEvent", ContentType: "application/json", Payload: []byte(`{"usage":1.5,"unit":"token"}`)},
		{EventType: "messageMetadataEvent", ContentType: "application/json", Payload: []byte(`{"conversationId":"abc"}`)},
	}

	wire := Encode(frames)
	decoded, remaining, err := Decode(wire)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	require.Len(t, decoded, len(frames))

	for i, f := range frames {
		assert.Equal(t, f.EventType, decoded[i].EventType)
		assert.JSONEq(t, string(f.Payload), string(decoded[i].Payload))
	}
}

func TestDecodeIncompleteTrailingFrame(t *testing.T) {
	frames := []Frame{
		{EventType: "assistantResponseEvent", Payload: []byte(`{"content":"hi"}`)},
	}
	wire := Encode(frames)
	partial := wire[:len(wire)-3]

	decoded, remaining, err := Decode(partial)
	require.NoError(t, err)
	assert.Empty(t, decoded)
	assert.Equal(t, partial, remaining)
}

func TestDecodeAppendThenComplete(t *testing.T) {
	frames := []Frame{
		{EventType: "assistantResponseEvent", Payload: []byte(`{"content":"hi"}`)},
	}
	wire := Encode(frames)
	partial := wire[:len(wire)-3]
	rest := wire[len(wire)-3:]

	decoded, remaining, err := Decode(partial)
	require.NoError(t, err)
	assert.Empty(t, decoded)

	full := append(remaining, rest...)
	decoded, remaining, err = Decode(full)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	require.Len(t, decoded, 1)
	assert.Equal(t, "assistantResponseEvent", decoded[0].EventType)
}

func TestInterpretAllEventTypes(t *testing.T) {
	cases := []struct {
		frame    Frame
		wantKind string
	}{
		{Frame{EventType: "assistantResponseEvent", Payload: []byte(`{"content":"hi"}`)}, "content"},
		{Frame{EventType: "toolUseEvent", Payload: []byte(`{"name":"x","toolUseId":"t1","input":"{}","stop":true}`)}, "toolUse"},
		{Frame{EventType: "reasoningContentEvent", Payload: []byte(`{"content":"plan"}`)}, "thinking"},
		{Frame{EventType: "meteringEvent", Payload: []byte(`{"usage":2,"unit":"token"}`)}, "metering"},
		{Frame{EventType: "messageMetadataEvent", Payload: []byte(`{"conversationId":"c1"}`)}, "metadata"},
	}
	for _, c := range cases {
		ev, err := Interpret(c.frame)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, c.wantKind, ev.Kind)
	}
}

func TestInterpretCodeReferenceFiltersEmptyFields(t *testing.T) {
	frame := Frame{
		EventType: "codeReferenceEvent",
		Payload:   []byte(`{"references":[{"licenseName":"","repository":"r","url":"u"},{"licenseName":"MIT","repository":"r","url":"u"}]}`),
	}
	ev, err := Interpret(frame)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Len(t, ev.CodeReferences, 1)
	assert.Equal(t, "MIT", ev.CodeReferences[0].LicenseName)
}

func TestInterpretUnknownEventTypeSkipped(t *testing.T) {
	ev, err := Interpret(Frame{EventType: "somethingNew", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestInterpretMalformedPayloadReturnsCodecError(t *testing.T) {
	ev, err := Interpret(Frame{EventType: "assistantResponseEvent", Payload: []byte(`not json`)})
	assert.Nil(t, ev)
	require.Error(t, err)
}
