package wsclient

import (
	"encoding/binary"
	"fmt"
)

// opcode identifies a WebSocket frame's type (spec.md §3, RFC 6455 §11.8).
type opcode byte

const (
	opContinuation opcode = 0x0
	opText         opcode = 0x1
	opBinary       opcode = 0x2
	opClose        opcode = 0x8
	opPing         opcode = 0x9
	opPong         opcode = 0xA
)

// frame is the transient decoded form of a single WebSocket frame
// (spec.md §3).
type frame struct {
	fin     bool
	opcode  opcode
	payload []byte
}

// decodeFrames parses as many complete frames as buf currently holds,
// returning them in wire order along with the undecoded remainder. An
// incomplete trailing frame is never an error: it is simply returned as
// part of rest, for the caller to retry once more bytes arrive through
// on_ready_to_read (spec.md §4.4 step 5, §5 "suspension points").
//
// Grounded on the accumulate-then-parse loop in the pepnova-9
// go-websocket-server reference's parseFrames, adapted from its
// single net.Conn buffer to the engine's Transport.Read-fed byte slice,
// plus the partial-frame bookkeeping pattern in
// jason-cq-nats-server/server/websocket.go's wsRead/wsReadInfo (there as
// struct fields carried across reads; here as the returned rest slice).
func decodeFrames(buf []byte, maxPayload int64) (frames []*frame, rest []byte, err error) {
	offset := 0

	for len(buf)-offset >= 2 {
		b0, b1 := buf[offset], buf[offset+1]
		fin := b0&0x80 != 0
		op := opcode(b0 & 0x0F)
		masked := b1&0x80 != 0
		length := int64(b1 & 0x7F)
		pos := offset + 2

		switch length {
		case 126:
			if len(buf)-pos < 2 {
				return frames, buf[offset:], nil
			}
			length = int64(binary.BigEndian.Uint16(buf[pos : pos+2]))
			pos += 2
		case 127:
			if len(buf)-pos < 8 {
				return frames, buf[offset:], nil
			}
			length = int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
			pos += 8
			if length < 0 {
				return nil, nil, newError(KindProtocolError, "frame length overflows a signed 64-bit integer", nil)
			}
		}

		if length > maxPayload {
			return nil, nil, newError(KindProtocolError, fmt.Sprintf("frame payload %d exceeds maximum %d", length, maxPayload), nil)
		}

		var maskKey [4]byte
		if masked {
			if len(buf)-pos < 4 {
				return frames, buf[offset:], nil
			}
			copy(maskKey[:], buf[pos:pos+4])
			pos += 4
		}

		if int64(len(buf)-pos) < length {
			return frames, buf[offset:], nil
		}

		payload := make([]byte, length)
		copy(payload, buf[pos:pos+int(length)])
		if masked {
			for i := range payload {
				payload[i] ^= maskKey[i%4]
			}
		}

		frames = append(frames, &frame{fin: fin, opcode: op, payload: payload})
		offset = pos + int(length)
	}

	return frames, buf[offset:], nil
}

// encodeHeader builds the header bytes (2, 4, or 10 bytes, before any
// masking key) for an outbound frame of the given opcode/length, per
// spec.md §4.4/§8 invariant 4.
func encodeHeader(op opcode, fin bool, length int) []byte {
	var b0 byte
	if fin {
		b0 = 0x80
	}
	b0 |= byte(op) & 0x0F

	switch {
	case length <= 125:
		return []byte{b0, 0x80 | byte(length)}
	case length <= 0xFFFF:
		header := make([]byte, 4)
		header[0] = b0
		header[1] = 0x80 | 126
		binary.BigEndian.PutUint16(header[2:], uint16(length))
		return header
	default:
		header := make([]byte, 10)
		header[0] = b0
		header[1] = 0x80 | 127
		binary.BigEndian.PutUint64(header[2:], uint64(length))
		return header
	}
}

// encodeFrame masks payload with a fresh CSPRNG key and returns the
// complete client→server frame (header + mask key + masked payload) as
// one slice ready for Transport.Send, satisfying spec.md §8 invariant 2
// (every client frame is masked with a fresh, independent key).
func encodeFrame(op opcode, payload []byte, fin bool) ([]byte, error) {
	key, err := generateMaskingKey()
	if err != nil {
		return nil, fmt.Errorf("wsclient: generating masking key: %w", err)
	}

	header := encodeHeader(op, fin, len(payload))

	buf := make([]byte, 0, len(header)+4+len(payload))
	buf = append(buf, header...)
	buf = append(buf, key[:]...)
	for i, b := range payload {
		buf = append(buf, b^key[i%4])
	}
	return buf, nil
}

// Close status codes defined by RFC 6455 §11.7. Named here in the style
// of jason-cq-nats-server/server/websocket.go's wsCloseStatus* constants,
// which cover the same set for the server side.
const (
	CloseNormalClosure           uint16 = 1000
	CloseGoingAway               uint16 = 1001
	CloseProtocolError           uint16 = 1002
	CloseUnsupportedData         uint16 = 1003
	CloseNoStatusReceived        uint16 = 1005
	CloseAbnormalClosure         uint16 = 1006
	CloseInvalidFramePayloadData uint16 = 1007
	ClosePolicyViolation         uint16 = 1008
	CloseMessageTooBig           uint16 = 1009
	CloseMandatoryExtension      uint16 = 1010
	CloseInternalServerErr       uint16 = 1011
	CloseTLSHandshake            uint16 = 1015
)

// encodeCloseFramePayload builds the payload for a Close frame: a 2-byte
// big-endian status code followed by the UTF-8 reason (spec.md §4.4
// "public send operations").
func encodeCloseFramePayload(code uint16, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[:2], code)
	copy(payload[2:], reason)
	return payload
}

// decodeClosePayload splits a received Close frame's payload into its
// status code and reason, defaulting to CloseNoStatusReceived when the
// payload is empty, per spec.md §9.
func decodeClosePayload(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return CloseNoStatusReceived, ""
	}
	return binary.BigEndian.Uint16(payload[:2]), string(payload[2:])
}
