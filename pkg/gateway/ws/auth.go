package ws

import (
	"net/http"
	"strings"

	"github.com/triplexrpc/triplex/pkg/rpc"
)

// tokenFromRequest extracts the bearer token from the Authorization header
// or, for browser clients that cannot set headers on a WebSocket dial, the
// "token" query parameter. A malformed Authorization header counts as no
// token, matching the usual bearer-scheme tolerance.
func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
	}

	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}

	return "", false
}

// authenticate resolves the request's principal.
//
// A missing token yields an anonymous (nil) principal, which the caller may
// still refuse when authentication is required. A presented but invalid
// token is an error regardless: a peer that tried to authenticate and
// failed should hear about it rather than silently continue anonymous.
func (g *Gateway) authenticate(r *http.Request) (*rpc.Principal, error) {
	if g.tokens == nil {
		return nil, nil
	}

	tok, ok := tokenFromRequest(r)
	if !ok {
		return nil, nil
	}

	return g.tokens.Verify(tok)
}
