package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Built-in command ids served by a stock triplex node. triplexctl's ping
// and watch commands talk to these.
const (
	CommandPing        = "ping"
	CommandEcho        = "echo"
	CommandMessageTest = "message.test"
)

// PingRequest is the body of a ping request.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse is the body of a ping reply.
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// FeedMessage is one message.test push.
type FeedMessage struct {
	Seq       uint64 `json:"seq"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// RegisterDemoHandlers installs the built-in commands on every transport:
// ping replies "Pong: <message>" with a server timestamp, echo returns the
// raw request body untouched.
func RegisterDemoHandlers(r *rpc.Router) {
	r.RegisterAll(CommandPing, rpc.HandlerEntry{
		Decode: rpc.JSONDecoder[PingRequest](),
		Encode: rpc.JSONEncoder(),
		Handle: func(ctx context.Context, req any, rsp rpc.Responder) error {
			ping := req.(*PingRequest)
			return rsp.Send(PingResponse{
				Message:   "Pong: " + ping.Message,
				Timestamp: time.Now().UnixMilli(),
			})
		},
	})

	// Raw passthrough: no decoder so the handler sees the body bytes, no
	// encoder so those bytes go straight back out.
	r.RegisterAll(CommandEcho, rpc.HandlerEntry{
		Handle: func(ctx context.Context, req any, rsp rpc.Responder) error {
			return rsp.Send(req)
		},
	})
}

// RunMessageFeed pushes a FeedMessage to every live connection on every
// transport under the message.test command id, once per interval, until
// ctx is cancelled. It is the live target for triplexctl watch and for
// push-handler smoke tests.
func RunMessageFeed(ctx context.Context, r *rpc.Router, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	broadcasters := make([]*rpc.Broadcaster, 0, len(rpc.Transports))
	for _, t := range rpc.Transports {
		broadcasters = append(broadcasters, r.Broadcaster(t, CommandMessageTest))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			// message.test has no registered handler, so the broadcaster
			// has no encoder for it; hand it pre-marshaled bytes.
			body, err := json.Marshal(FeedMessage{
				Seq:       seq,
				Message:   "hello",
				Timestamp: time.Now().UnixMilli(),
			})
			if err != nil {
				continue
			}
			for _, b := range broadcasters {
				if err := b.SendAll(body); err != nil {
					logger.Debug("Feed push failed",
						logger.Transport(string(b.Transport())),
						logger.Err(err))
				}
			}
		}
	}
}
