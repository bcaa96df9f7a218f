// Package codec turns a raw byte stream into discrete wire frames.
//
// Wire format: [4-byte big-endian length N >= 1][1-byte type][N-1 bytes
// payload]. The length counts the type byte plus the payload. Frames are
// reassembled incrementally, so callers may feed arbitrarily fragmented
// chunks.
package codec

import (
	"encoding/binary"
	"fmt"

	"lansync/internel/shared"
)

const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	initialBufferSize = 64 * 1024
)

// FrameErrorKind classifies codec failures. All of them are fatal to the
// connection; the decoder never discards bytes and resyncs.
type FrameErrorKind int

const (
	// FrameErrorInvalidLength indicates a declared length of zero.
	FrameErrorInvalidLength FrameErrorKind = iota
	// FrameErrorTooLarge indicates a declared length beyond MaxFrameSize.
	FrameErrorTooLarge
)

// FrameError reports an unrecoverable framing failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
}

func (e *FrameError) Error() string {
	return e.Msg
}

// Reassembler owns a growable buffer of undecoded bytes and emits whole
// frames as they become available. It is not safe for concurrent use; the
// transport reader goroutine that feeds the engine is its only caller.
type Reassembler struct {
	buf  []byte
	used int
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		buf: make([]byte, initialBufferSize),
	}
}

// Feed appends chunk to the internal buffer and returns every frame that is
// now complete, in arrival order. Each returned frame is the [type||payload]
// slice with the length prefix stripped, copied out of the internal buffer.
// A partial trailer stays buffered for the next call.
func (r *Reassembler) Feed(chunk []byte) ([][]byte, error) {
	r.grow(len(chunk))
	copy(r.buf[r.used:], chunk)
	r.used += len(chunk)

	var frames [][]byte
	offset := 0
	for {
		if r.used-offset < LengthPrefixSize {
			break
		}
		length := binary.BigEndian.Uint32(r.buf[offset : offset+LengthPrefixSize])
		if length == 0 {
			return nil, &FrameError{
				Kind: FrameErrorInvalidLength,
				Msg:  "frame length must be positive",
			}
		}
		if length > shared.MaxFrameSize {
			return nil, &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("frame length %d exceeds maximum %d", length, shared.MaxFrameSize),
			}
		}
		total := LengthPrefixSize + int(length)
		if r.used-offset < total {
			break
		}
		frame := make([]byte, length)
		copy(frame, r.buf[offset+LengthPrefixSize:offset+total])
		frames = append(frames, frame)
		offset += total
	}

	// Compact: move the residual tail to the front.
	if offset > 0 {
		copy(r.buf, r.buf[offset:r.used])
		r.used -= offset
	}

	return frames, nil
}

// Encode prepends the length prefix to a [type||payload] frame.
func Encode(msgType byte, payload []byte) []byte {
	out := make([]byte, LengthPrefixSize+1+len(payload))
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(1+len(payload)))
	out[LengthPrefixSize] = msgType
	copy(out[LengthPrefixSize+1:], payload)
	return out
}

func (r *Reassembler) grow(n int) {
	need := r.used + n
	if need <= len(r.buf) {
		return
	}
	size := len(r.buf)
	for size < need {
		size *= 2
	}
	next := make([]byte, size)
	copy(next, r.buf[:r.used])
	r.buf = next
}
