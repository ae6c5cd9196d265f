package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
)

// ErrForbidden is wrapped by authorizers that turn a client away.
var ErrForbidden = errors.New("client not allowed")

// Authorizer decides whether a client may submit scripts or subscribe to
// reports.
type Authorizer interface {
	Allow(ctx context.Context, remoteAddr string) error
}

// NoopAuthorizer admits every client.
type NoopAuthorizer struct{}

func (NoopAuthorizer) Allow(context.Context, string) error { return nil }

// AllowlistAuthorizer admits clients whose host or host:port is listed. An
// empty list admits everyone.
type AllowlistAuthorizer struct {
	Allowed []string
}

func (a AllowlistAuthorizer) Allow(_ context.Context, remoteAddr string) error {
	if len(a.Allowed) == 0 {
		return nil
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if slices.Contains(a.Allowed, remoteAddr) || slices.Contains(a.Allowed, host) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, remoteAddr)
}
