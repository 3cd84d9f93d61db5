package rpc

import (
	"fmt"
	"sync/atomic"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/envelope"
)

// Responder emits the reply for one inbound envelope.
//
// A responder is handed to the handler bound to that envelope. Replies
// echo the inbound command id and correlation token, so the peer can match
// them to the request it sent.
//
// Each responder allows at most one terminal reply: the first Send or
// SendError wins and later calls are warned no-ops. This absorbs the race
// between a handler that already replied and the dispatcher reporting a
// subsequent error from the same handler.
//
// Handlers may retain a responder beyond their return and reply later.
// If the connection has closed in the meantime, sends fail with
// ErrConnectionClosed.
type Responder interface {
	// Send encodes body with the command's encoder and writes a RESPONSE
	// envelope.
	Send(body any) error

	// SendError writes an ERROR envelope carrying reason as its body.
	SendError(reason string) error
}

type connResponder struct {
	conn      *Conn
	commandID string
	requestID string
	encode    func(any) ([]byte, error)
	replied   atomic.Bool
}

func newResponder(conn *Conn, commandID, requestID string, encode func(any) ([]byte, error)) *connResponder {
	return &connResponder{
		conn:      conn,
		commandID: commandID,
		requestID: requestID,
		encode:    encode,
	}
}

func (r *connResponder) Send(body any) error {
	data, err := encodeBody(r.encode, body)
	if err != nil {
		return fmt.Errorf("encode response body: %w", err)
	}
	return r.reply(envelope.NewResponse(r.commandID, r.requestID, data))
}

func (r *connResponder) SendError(reason string) error {
	return r.reply(envelope.NewError(r.commandID, r.requestID, reason))
}

func (r *connResponder) reply(e envelope.Envelope) error {
	if !r.replied.CompareAndSwap(false, true) {
		logger.Warn("Responder already replied, dropping duplicate",
			logger.Transport(string(r.conn.Transport())),
			logger.ConnectionID(r.conn.ID()),
			logger.Command(r.commandID),
			logger.RequestID(r.requestID))
		return nil
	}
	return r.conn.Send(e)
}
