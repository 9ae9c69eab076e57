package nats

import (
	"errors"

	"github.com/nats-io/nats.go"
)

// isTransient matches the errors a publish hits while the client is
// (re)connecting; they clear once the server is reachable again.
func isTransient(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
}
