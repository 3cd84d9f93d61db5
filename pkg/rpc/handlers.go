package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/triplexrpc/triplex/internal/logger"
)

// HandlerFunc processes one decoded inbound request.
//
// req is the value produced by the entry's Decode function (the raw body
// bytes when Decode is nil). The handler may reply through rsp before or
// after returning, retain rsp for a later push, or never reply at all.
// A non-nil error is reported to the peer as a protocol ERROR envelope.
type HandlerFunc func(ctx context.Context, req any, rsp Responder) error

// HandlerEntry is one registry row: how to decode a command's request
// body, how to encode its response body, and the handler to invoke.
type HandlerEntry struct {
	// Decode parses the inbound envelope body. When nil the handler
	// receives the raw bytes.
	Decode func(data []byte) (any, error)

	// Encode serializes values handed to Responder.Send and
	// Broadcaster.Send. When nil only []byte, string, and nil bodies are
	// accepted.
	Encode func(body any) ([]byte, error)

	// Handle processes the request.
	Handle HandlerFunc
}

// JSONDecoder returns a Decode function that parses the body as JSON into
// a fresh T. Handlers then assert req to *T. An empty body yields the zero
// value.
func JSONDecoder[T any]() func([]byte) (any, error) {
	return func(data []byte) (any, error) {
		v := new(T)
		if len(data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// JSONEncoder returns an Encode function that serializes response bodies
// as JSON.
func JSONEncoder() func(any) ([]byte, error) {
	return func(body any) ([]byte, error) {
		return json.Marshal(body)
	}
}

// decodeBody applies an entry's decoder, passing raw bytes through when no
// decoder is registered.
func decodeBody(decode func([]byte) (any, error), data []byte) (any, error) {
	if decode == nil {
		return data, nil
	}
	return decode(data)
}

// encodeBody applies an entry's encoder. Without one, only bodies that are
// already bytes can be sent.
func encodeBody(encode func(any) ([]byte, error), body any) ([]byte, error) {
	if encode != nil {
		return encode(body)
	}

	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("no encoder registered for body of type %T", body)
	}
}

// handlerTable is the immutable two-level lookup map swapped on register.
type handlerTable map[Transport]map[string]*HandlerEntry

// HandlerRegistry maps (transport, command id) to handler entries.
//
// Registration happens at startup and is rare; lookups run on every
// inbound envelope. The table is therefore copied on write and swapped
// atomically, keeping the hot lookup path lock-free.
type HandlerRegistry struct {
	mu    sync.Mutex // serializes writers
	table atomic.Pointer[handlerTable]
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{}
	empty := make(handlerTable)
	r.table.Store(&empty)
	return r
}

// Register binds an entry to (transport, commandID). Re-registering a
// command replaces the previous entry; the overwrite is logged because it
// usually indicates two components claiming the same command id.
func (r *HandlerRegistry) Register(t Transport, commandID string, entry HandlerEntry) {
	if commandID == "" || entry.Handle == nil {
		logger.Warn("Ignoring invalid handler registration",
			logger.Transport(string(t)),
			logger.Command(commandID))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.table.Load()
	next := make(handlerTable, len(cur)+1)
	for tr, cmds := range cur {
		cloned := make(map[string]*HandlerEntry, len(cmds)+1)
		for id, e := range cmds {
			cloned[id] = e
		}
		next[tr] = cloned
	}

	cmds := next[t]
	if cmds == nil {
		cmds = make(map[string]*HandlerEntry, 1)
		next[t] = cmds
	}

	if _, exists := cmds[commandID]; exists {
		logger.Warn("Handler overwritten",
			logger.Transport(string(t)),
			logger.Command(commandID))
	}

	e := entry
	cmds[commandID] = &e
	r.table.Store(&next)
}

// RegisterAll binds an entry to commandID on every transport.
func (r *HandlerRegistry) RegisterAll(commandID string, entry HandlerEntry) {
	for _, t := range Transports {
		r.Register(t, commandID, entry)
	}
}

// Lookup returns the entry registered for (transport, commandID).
func (r *HandlerRegistry) Lookup(t Transport, commandID string) (*HandlerEntry, bool) {
	e, ok := (*r.table.Load())[t][commandID]
	return e, ok
}

// Commands returns the command ids registered for a transport. Intended
// for diagnostics; the result is a fresh slice in map order.
func (r *HandlerRegistry) Commands(t Transport) []string {
	cmds := (*r.table.Load())[t]
	ids := make([]string, 0, len(cmds))
	for id := range cmds {
		ids = append(ids, id)
	}
	return ids
}
