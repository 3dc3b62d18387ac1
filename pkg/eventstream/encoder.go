package eventstream

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// Encode serializes frames back into AWS event-stream binary framing.
// It exists primarily so the codec's round-trip property can be tested
// without a live upstream; CRCs are always computed and correct on
// output even though Decode treats them as optional on input.
func Encode(frames []Frame) []byte {
	var out bytes.Buffer
	for _, f := range frames {
		out.Write(encodeFrame(f))
	}
	return out.Bytes()
}

func encodeFrame(f Frame) []byte {
	headers := f.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	if f.EventType != "" {
		headers[":event-type"] = f.EventType
	}
	if f.ContentType != "" {
		headers[":content-type"] = f.ContentType
	}
	if f.MessageType != "" {
		headers[":message-type"] = f.MessageType
	}

	var headerBuf bytes.Buffer
	for name, value := range headers {
		headerBuf.WriteByte(byte(len(name)))
		headerBuf.WriteString(name)
		headerBuf.WriteByte(byte(headerTypeString))
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
		headerBuf.Write(lenBuf[:])
		headerBuf.WriteString(value)
	}

	headersLength := uint32(headerBuf.Len())
	totalLength := preludeLength + headersLength + uint32(len(f.Payload)) + 4

	var prelude [12]byte
	binary.BigEndian.PutUint32(prelude[0:4], totalLength)
	binary.BigEndian.PutUint32(prelude[4:8], headersLength)
	preludeCRC := crc32.ChecksumIEEE(prelude[0:8])
	binary.BigEndian.PutUint32(prelude[8:12], preludeCRC)

	var msg bytes.Buffer
	msg.Write(prelude[:])
	msg.Write(headerBuf.Bytes())
	msg.Write(f.Payload)

	messageCRC := crc32.ChecksumIEEE(msg.Bytes())
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], messageCRC)
	msg.Write(crcBuf[:])

	return msg.Bytes()
}
