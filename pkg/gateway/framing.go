package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/triplexrpc/triplex/pkg/bufpool"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Stream framing for the TCP and KCP gateways.
//
// Every frame is a 4-byte little-endian length prefix followed by exactly
// that many bytes of envelope payload. The prefix counts the payload only,
// not itself. A length of zero or above rpc.MaxFrameSize is a protocol
// violation; once framing is wrong the stream offset is unrecoverable, so
// gateways close the connection without attempting a reply.

// FrameHeaderSize is the size of the length prefix in bytes.
const FrameHeaderSize = 4

// ErrZeroLengthFrame reports a frame whose length prefix was zero.
var ErrZeroLengthFrame = errors.New("zero-length frame")

// ReadFrame reads one length-prefixed frame from r into a pooled buffer.
//
// The returned slice is sized exactly to the payload and borrowed from
// bufpool; the caller must release it with bufpool.Put once the frame has
// been consumed. io.EOF is returned unchanged when the stream ends cleanly
// between frames, so callers can tell an orderly close from a truncated
// frame (io.ErrUnexpectedEOF, wrapped).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrZeroLengthFrame
	}
	if length > rpc.MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", rpc.ErrFrameTooLarge, length, rpc.MaxFrameSize)
	}

	buf := bufpool.GetUint32(length)
	if _, err := io.ReadFull(r, buf); err != nil {
		bufpool.Put(buf)
		return nil, fmt.Errorf("read frame body (%d bytes): %w", length, err)
	}

	return buf, nil
}

// WriteFrame writes the length prefix and the frame body as a single Write
// call, so writers serialized by the caller never leave a partial frame on
// the wire between writes.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) == 0 {
		return ErrZeroLengthFrame
	}
	if len(frame) > rpc.MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", rpc.ErrFrameTooLarge, len(frame), rpc.MaxFrameSize)
	}

	wire := bufpool.Get(FrameHeaderSize + len(frame))
	defer bufpool.Put(wire)

	binary.LittleEndian.PutUint32(wire, uint32(len(frame)))
	copy(wire[FrameHeaderSize:], frame)

	if _, err := w.Write(wire); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
