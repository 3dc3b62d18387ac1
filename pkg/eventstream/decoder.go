// Package eventstream decodes AWS event-stream binary framing: the
// 12-byte prelude (total length, headers length, prelude CRC), the
// headers region, the payload, and the trailing message CRC. It is
// generalized from a Bedrock-specific decoder to handle the full set of
// CodeWhisperer event types and non-string header value types.
package eventstream

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/cwbridge/proxy/pkg/cwerr"
)

const preludeLength = 12

// headerValueType enumerates the AWS event-stream header value-type byte.
// Only string (7) carries data the core cares about; everything else is
// skipped by length so a single decoder handles the whole wire format
// without choking on header kinds it doesn't need.
type headerValueType byte

const (
	headerTypeBool      headerValueType = 0
	headerTypeBoolFalse headerValueType = 1
	headerTypeByte      headerValueType = 2
	headerTypeShort     headerValueType = 3
	headerTypeInteger   headerValueType = 4
	headerTypeLong      headerValueType = 5
	headerTypeByteArray headerValueType = 6
	headerTypeString    headerValueType = 7
	headerTypeTimestamp headerValueType = 8
	headerTypeUUID      headerValueType = 9
)

// Frame is one decoded event-stream message.
type Frame struct {
	EventType   string
	ContentType string
	MessageType string
	Headers     map[string]string
	Payload     []byte
}

// Decode consumes as many complete frames as are present in buf and
// returns them along with the unconsumed remainder. An incomplete
// trailing frame is never mutated, matching the append-only buffer
// contract: callers append new bytes to the returned remainder and call
// Decode again.
func Decode(buf []byte) ([]Frame, []byte, error) {
	var frames []Frame
	for {
		if len(buf) < preludeLength {
			return frames, buf, nil
		}
		totalLength := binary.BigEndian.Uint32(buf[0:4])
		headersLength := binary.BigEndian.Uint32(buf[4:8])

		if totalLength < preludeLength+4 || int(totalLength) < preludeLength {
			return frames, buf, cwerr.New(cwerr.KindCodecError, 0, "inconsistent prelude length", nil)
		}
		if uint64(len(buf)) < uint64(totalLength) {
			// Incomplete trailing frame; wait for more bytes.
			return frames, buf, nil
		}
		if headersLength > totalLength {
			return frames, buf, cwerr.New(cwerr.KindCodecError, 0, "headers length exceeds total length", nil)
		}

		message := buf[:totalLength]
		headersStart := preludeLength
		headersEnd := headersStart + int(headersLength)
		payloadEnd := int(totalLength) - 4 // trailing message CRC

		if headersEnd > payloadEnd {
			return frames, buf, cwerr.New(cwerr.KindCodecError, 0, "headers overrun payload", nil)
		}

		headers, err := parseHeaders(message[headersStart:headersEnd])
		if err != nil {
			buf = buf[totalLength:]
			continue // malformed headers: frame skipped without being reported, not fatal to the stream
		}

		payload := message[headersEnd:payloadEnd]

		frame := Frame{
			EventType:   headers[":event-type"],
			ContentType: headers[":content-type"],
			MessageType: headers[":message-type"],
			Headers:     headers,
			Payload:     append([]byte(nil), payload...),
		}
		frames = append(frames, frame)
		buf = buf[totalLength:]
	}
}

// parseHeaders walks the headers region: {name-len u8, name, value-type
// u8, value-len u16-BE, value}. Non-string values are skipped by length.
func parseHeaders(region []byte) (map[string]string, error) {
	headers := make(map[string]string)
	i := 0
	for i < len(region) {
		if i+1 > len(region) {
			return nil, fmt.Errorf("truncated header name length")
		}
		nameLen := int(region[i])
		i++
		if i+nameLen > len(region) {
			return nil, fmt.Errorf("truncated header name")
		}
		name := string(region[i : i+nameLen])
		i += nameLen

		if i+1 > len(region) {
			return nil, fmt.Errorf("truncated header value type")
		}
		valueType := headerValueType(region[i])
		i++

		switch valueType {
		case headerTypeString, headerTypeByteArray:
			if i+2 > len(region) {
				return nil, fmt.Errorf("truncated header value length")
			}
			valueLen := int(binary.BigEndian.Uint16(region[i : i+2]))
			i += 2
			if i+valueLen > len(region) {
				return nil, fmt.Errorf("truncated header value")
			}
			if valueType == headerTypeString {
				headers[name] = string(region[i : i+valueLen])
			}
			i += valueLen
		case headerTypeBool, headerTypeBoolFalse:
			// no value bytes
		case headerTypeByte:
			i += 1
		case headerTypeShort:
			i += 2
		case headerTypeInteger:
			i += 4
		case headerTypeLong, headerTypeTimestamp:
			i += 8
		case headerTypeUUID:
			i += 16
		default:
			return nil, fmt.Errorf("unknown header value type %d", valueType)
		}
	}
	return headers, nil
}

// VerifyCRC recomputes the prelude and full-message CRC32 checksums for
// diagnostic logging. CRC validation is optional at this layer per the
// codec's contract; callers may log a mismatch without failing decode.
func VerifyCRC(message []byte) (preludeOK, messageOK bool) {
	if len(message) < preludeLength+4 {
		return false, false
	}
	preludeCRC := binary.BigEndian.Uint32(message[8:12])
	preludeOK = crc32.ChecksumIEEE(message[0:8]) == preludeCRC

	messageCRC := binary.BigEndian.Uint32(message[len(message)-4:])
	messageOK = crc32.ChecksumIEEE(message[:len(message)-4]) == messageCRC
	return preludeOK, messageOK
}
