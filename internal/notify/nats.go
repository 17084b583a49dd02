package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// publisher is the part of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSNotifier publishes task events as JSON on a NATS subject, so editors,
// dashboards or other build tools can react to finished runs.
type NATSNotifier struct {
	pub     publisher
	subject string
}

// NewNATSNotifier connects to url. The connection reconnects on its own;
// publishing while disconnected buffers in the client.
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("assetbuilder"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, ferrors.NetworkError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS notifier connected", "url", url, "subject", subject)
	return &NATSNotifier{pub: conn, subject: subject}, nil
}

func (n *NATSNotifier) Notify(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return ferrors.InternalError("failed to marshal task event").WithCause(err).Build()
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return ferrors.NetworkError("failed to publish task event").
			WithCause(err).
			Warning().
			WithContext("subject", n.subject).
			Build()
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	return n.pub.Drain()
}
