package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRoundTrip(t *testing.T) {
	t.Run("AllFieldsSurviveEncodeDecode", func(t *testing.T) {
		original := Envelope{
			ID:        "user.profile.get",
			RequestID: "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
			Type:      TypeResponse,
			Data:      []byte(`{"name":"ada"}`),
		}

		encoded, err := Marshal(original)
		require.NoError(t, err)

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("MinimalRequestRoundTrips", func(t *testing.T) {
		original := Envelope{ID: "ping"}

		encoded, err := Marshal(original)
		require.NoError(t, err)

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
		assert.Equal(t, TypeRequest, decoded.Type)
	})

	t.Run("EveryMessageTypeRoundTrips", func(t *testing.T) {
		for _, typ := range []MessageType{TypeRequest, TypeResponse, TypeError} {
			original := Envelope{ID: "cmd", Type: typ, Data: []byte("x")}

			encoded, err := Marshal(original)
			require.NoError(t, err)

			decoded, err := Unmarshal(encoded)
			require.NoError(t, err, "type %s", typ)
			assert.Equal(t, typ, decoded.Type)
		}
	})

	t.Run("ErrorEnvelopeCarriesReason", func(t *testing.T) {
		e := NewError("boom", "r2", "Handler error: kaboom")

		encoded, err := Marshal(e)
		require.NoError(t, err)

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		assert.Equal(t, TypeError, decoded.Type)
		assert.Equal(t, "Handler error: kaboom", decoded.Reason())
		assert.Equal(t, "r2", decoded.RequestID)
	})
}

func TestEncoding(t *testing.T) {
	t.Run("SizeMatchesMarshalledLength", func(t *testing.T) {
		envelopes := []Envelope{
			{ID: "a"},
			{ID: "ping", RequestID: "r1"},
			{ID: "cmd", Type: TypeError, Data: []byte("reason")},
			{ID: "bulk", RequestID: "r2", Type: TypeResponse, Data: make([]byte, 5000)},
		}

		for _, e := range envelopes {
			encoded, err := Marshal(e)
			require.NoError(t, err)
			assert.Equal(t, e.Size(), len(encoded), "envelope %+v", e)
		}
	})

	t.Run("ZeroTypeAndEmptyFieldsAreOmitted", func(t *testing.T) {
		bare, err := Marshal(Envelope{ID: "x"})
		require.NoError(t, err)

		full, err := Marshal(Envelope{ID: "x", RequestID: "r", Type: TypeError, Data: []byte("d")})
		require.NoError(t, err)

		assert.Less(t, len(bare), len(full))
		// tag + length + "x" only
		assert.Equal(t, 3, len(bare))
	})

	t.Run("AppendExtendsExistingBuffer", func(t *testing.T) {
		buf := make([]byte, 0, 64)
		e := Envelope{ID: "ping", Data: []byte("hi")}

		out, err := Append(buf, e)
		require.NoError(t, err)
		assert.Equal(t, e.Size(), len(out))

		decoded, err := Unmarshal(out)
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	})

	t.Run("MissingIDFailsEncode", func(t *testing.T) {
		_, err := Marshal(Envelope{Data: []byte("orphan")})
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("OutOfRangeTypeFailsEncode", func(t *testing.T) {
		_, err := Marshal(Envelope{ID: "x", Type: MessageType(7)})
		assert.ErrorIs(t, err, ErrInvalidType)
	})
}

func TestDecoding(t *testing.T) {
	t.Run("EmptyInputIsMissingID", func(t *testing.T) {
		_, err := Unmarshal(nil)
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("GarbageFailsWithTruncated", func(t *testing.T) {
		_, err := Unmarshal([]byte{0xff, 0xff, 0xff})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("DecodedIDWithoutValueIsMissingID", func(t *testing.T) {
		// A lone type field decodes fine but leaves no command id.
		var b []byte
		b = protowire.AppendTag(b, fieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(TypeResponse))

		_, err := Unmarshal(b)
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("PartialFieldsSurviveDecodeFailure", func(t *testing.T) {
		// id and request_id decode, then the payload length lies about the
		// remaining bytes. The partial envelope must keep what was read so
		// the read path can echo the request id on its ERROR reply.
		var b []byte
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, "cmd")
		b = protowire.AppendTag(b, fieldRequestID, protowire.BytesType)
		b = protowire.AppendString(b, "r1")
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendVarint(b, 100) // claims 100 bytes, none follow

		partial, err := Unmarshal(b)
		require.Error(t, err)
		assert.Equal(t, "cmd", partial.ID)
		assert.Equal(t, "r1", partial.RequestID)
	})

	t.Run("UnknownFieldsAreSkipped", func(t *testing.T) {
		encoded, err := Marshal(Envelope{ID: "ping", RequestID: "r9"})
		require.NoError(t, err)

		// A future peer appends field 5; today's decoder must ignore it.
		encoded = protowire.AppendTag(encoded, 5, protowire.BytesType)
		encoded = protowire.AppendString(encoded, "from-the-future")

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)
		assert.Equal(t, "ping", decoded.ID)
		assert.Equal(t, "r9", decoded.RequestID)
	})

	t.Run("OutOfRangeTypeFailsDecode", func(t *testing.T) {
		var b []byte
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, "cmd")
		b = protowire.AppendTag(b, fieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, 9)

		_, err := Unmarshal(b)
		assert.ErrorIs(t, err, ErrInvalidType)
	})

	t.Run("DataIsCopiedOutOfInputBuffer", func(t *testing.T) {
		encoded, err := Marshal(Envelope{ID: "cmd", Data: []byte("stable")})
		require.NoError(t, err)

		decoded, err := Unmarshal(encoded)
		require.NoError(t, err)

		// Recycling the frame buffer must not corrupt the decoded payload.
		for i := range encoded {
			encoded[i] = 0xAA
		}
		assert.Equal(t, []byte("stable"), decoded.Data)
	})
}

func TestConstructors(t *testing.T) {
	t.Run("NewRequest", func(t *testing.T) {
		e := NewRequest("ping", "r1", []byte("hi"))
		assert.Equal(t, TypeRequest, e.Type)
		assert.Equal(t, "ping", e.ID)
		assert.Equal(t, "r1", e.RequestID)
	})

	t.Run("NewResponseEchoesRequestID", func(t *testing.T) {
		e := NewResponse("ping", "r1", nil)
		assert.Equal(t, TypeResponse, e.Type)
		assert.Equal(t, "r1", e.RequestID)
	})

	t.Run("NewErrorStoresReasonAsData", func(t *testing.T) {
		e := NewError("cmd", "", "Command 'cmd' not supported")
		assert.Equal(t, TypeError, e.Type)
		assert.Equal(t, []byte("Command 'cmd' not supported"), e.Data)
	})
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "REQUEST", TypeRequest.String())
	assert.Equal(t, "RESPONSE", TypeResponse.String())
	assert.Equal(t, "ERROR", TypeError.String())
	assert.Equal(t, "UNKNOWN(9)", MessageType(9).String())
}
