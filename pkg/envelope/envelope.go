// Package envelope defines the wire object shared by every transport and
// both sides of the connection.
//
// An envelope is a compact tagged record carrying four fields: the command
// id that names the operation, an optional correlation token echoed on
// replies, the message type, and an opaque payload. The encoding is the
// protobuf wire format assembled by hand with protowire; there is no
// generated code and no schema file to keep in sync. Unknown fields are
// skipped on decode so old peers tolerate newer envelopes.
package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers. These are fixed by the protocol and must never be
// renumbered.
const (
	fieldID        = 1 // bytes: command id
	fieldRequestID = 2 // bytes: correlation token, omitted when empty
	fieldType      = 3 // varint: message type, omitted when REQUEST
	fieldData      = 4 // bytes: payload, omitted when empty
)

// MessageType discriminates the three envelope kinds.
type MessageType int32

const (
	TypeRequest  MessageType = 0
	TypeResponse MessageType = 1
	TypeError    MessageType = 2
)

// String returns the protocol-level name of the message type.
func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeResponse:
		return "RESPONSE"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Envelope is the single wire object. For TypeError envelopes, Data holds
// the UTF-8 reason string.
type Envelope struct {
	ID        string      // command id; non-empty on every valid envelope
	RequestID string      // correlation token; empty when no reply is expected
	Type      MessageType // REQUEST, RESPONSE or ERROR
	Data      []byte      // opaque payload
}

// Codec errors.
var (
	ErrMissingID   = errors.New("envelope: missing command id")
	ErrInvalidType = errors.New("envelope: invalid message type")
	ErrTruncated   = errors.New("envelope: truncated or malformed wire data")
)

// Validate checks the envelope invariants that hold on every wire message.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.Type < TypeRequest || e.Type > TypeError {
		return fmt.Errorf("%w: %d", ErrInvalidType, int32(e.Type))
	}
	return nil
}

// Reason returns the error reason carried by an ERROR envelope.
func (e Envelope) Reason() string {
	return string(e.Data)
}

// Size returns the exact encoded size in bytes. Useful for sizing pooled
// buffers before Append.
func (e Envelope) Size() int {
	n := protowire.SizeTag(fieldID) + protowire.SizeBytes(len(e.ID))
	if e.RequestID != "" {
		n += protowire.SizeTag(fieldRequestID) + protowire.SizeBytes(len(e.RequestID))
	}
	if e.Type != TypeRequest {
		n += protowire.SizeTag(fieldType) + protowire.SizeVarint(uint64(e.Type))
	}
	if len(e.Data) > 0 {
		n += protowire.SizeTag(fieldData) + protowire.SizeBytes(len(e.Data))
	}
	return n
}

// Append encodes the envelope onto dst and returns the extended slice.
// This is the allocation-light path for callers holding a pooled buffer.
func Append(dst []byte, e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return dst, err
	}

	dst = protowire.AppendTag(dst, fieldID, protowire.BytesType)
	dst = protowire.AppendString(dst, e.ID)

	if e.RequestID != "" {
		dst = protowire.AppendTag(dst, fieldRequestID, protowire.BytesType)
		dst = protowire.AppendString(dst, e.RequestID)
	}

	// The zero type (REQUEST) is omitted, matching canonical proto3 output.
	if e.Type != TypeRequest {
		dst = protowire.AppendTag(dst, fieldType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(e.Type))
	}

	if len(e.Data) > 0 {
		dst = protowire.AppendTag(dst, fieldData, protowire.BytesType)
		dst = protowire.AppendBytes(dst, e.Data)
	}

	return dst, nil
}

// Marshal encodes the envelope into a freshly allocated buffer.
func Marshal(e Envelope) ([]byte, error) {
	return Append(make([]byte, 0, e.Size()), e)
}

// Unmarshal decodes one envelope from b.
//
// The returned envelope is meaningful even when err is non-nil: it carries
// every field decoded before the failure, so a read path can echo the
// offending request_id on its protocol-level ERROR reply. Data is copied
// out of b; the caller may recycle b immediately.
func Unmarshal(b []byte) (Envelope, error) {
	var e Envelope

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("%w: bad tag: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, fmt.Errorf("%w: command id: %v", ErrTruncated, protowire.ParseError(m))
			}
			e.ID = string(v)
			b = b[m:]

		case num == fieldRequestID && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, fmt.Errorf("%w: request id: %v", ErrTruncated, protowire.ParseError(m))
			}
			e.RequestID = string(v)
			b = b[m:]

		case num == fieldType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, fmt.Errorf("%w: message type: %v", ErrTruncated, protowire.ParseError(m))
			}
			if v > uint64(TypeError) {
				return e, fmt.Errorf("%w: %d", ErrInvalidType, v)
			}
			e.Type = MessageType(v)
			b = b[m:]

		case num == fieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return e, fmt.Errorf("%w: payload: %v", ErrTruncated, protowire.ParseError(m))
			}
			e.Data = make([]byte, len(v))
			copy(e.Data, v)
			b = b[m:]

		default:
			// Unknown field: skip so newer peers stay compatible.
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return e, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}

	if e.ID == "" {
		return e, ErrMissingID
	}
	return e, nil
}

// NewRequest builds a REQUEST envelope. An empty requestID means
// fire-and-forget: no reply will be correlated back to the caller.
func NewRequest(commandID, requestID string, data []byte) Envelope {
	return Envelope{ID: commandID, RequestID: requestID, Type: TypeRequest, Data: data}
}

// NewResponse builds a RESPONSE envelope echoing the request's correlation
// token, which may be empty for uncorrelated pushes.
func NewResponse(commandID, requestID string, data []byte) Envelope {
	return Envelope{ID: commandID, RequestID: requestID, Type: TypeResponse, Data: data}
}

// NewError builds an ERROR envelope whose payload is the UTF-8 reason.
func NewError(commandID, requestID, reason string) Envelope {
	return Envelope{ID: commandID, RequestID: requestID, Type: TypeError, Data: []byte(reason)}
}
