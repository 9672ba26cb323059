package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels used by the audit pipeline. The fallback channel carries audit
// entries that could not be written to the primary store; the alerts channel
// carries operational compliance alerts.
const (
	ChannelAuditFallback = "phicore.audit.fallback"
	ChannelAlerts        = "phicore.alerts"
)
