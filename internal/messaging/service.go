// Package messaging provides the outbound notification collaborator invoked
// by the dispatcher for NOTIFY operations, with WhatsApp delivery backed by
// either whatsmeow (direct) or Twilio.
package messaging

import (
	"context"
	"fmt"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/queue"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Ready reports whether the underlying client is attached and connected.
	// NOTIFY queue rows are only eligible while this returns true.
	Ready() bool

	// Stop disconnects the client and cleans up resources.
	Stop() error
}

// RegisterNotifyHandlers registers the NOTIFY operations the queue accepts
// against the given delivery service. Operation names are the enqueue-side
// contract; unknown names are rejected before a row is written.
func RegisterNotifyHandlers(registry *queue.Registry, svc Service) {
	registry.Register(store.CategoryNotify, "send_message", func(ctx context.Context, args []any, kwargs map[string]any) error {
		to, body, err := recipientAndBody(kwargs)
		if err != nil {
			return err
		}
		return svc.SendMessage(ctx, to, body)
	})

	registry.Register(store.CategoryNotify, "send_payment_reminder", func(ctx context.Context, args []any, kwargs map[string]any) error {
		to, body, err := recipientAndBody(kwargs)
		if err != nil {
			return err
		}
		return svc.SendMessage(ctx, to, body)
	})

	registry.Register(store.CategoryNotify, "send_class_notification", func(ctx context.Context, args []any, kwargs map[string]any) error {
		to, body, err := recipientAndBody(kwargs)
		if err != nil {
			return err
		}
		return svc.SendMessage(ctx, to, body)
	})
}

func recipientAndBody(kwargs map[string]any) (string, string, error) {
	to, _ := kwargs["to"].(string)
	if to == "" {
		to, _ = kwargs["to_phone"].(string)
	}
	if to == "" {
		return "", "", fmt.Errorf("notify operation missing recipient")
	}
	body, _ := kwargs["body"].(string)
	if body == "" {
		body, _ = kwargs["message"].(string)
	}
	if body == "" {
		return "", "", fmt.Errorf("notify operation missing message body")
	}
	return to, body, nil
}
