package messaging

import (
	"context"
	"testing"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/queue"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// fakeService records deliveries.
type fakeService struct {
	sent []sentMessage
}

type sentMessage struct {
	to   string
	body string
}

func (f *fakeService) SendMessage(ctx context.Context, to, body string) error {
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeService) Ready() bool { return true }
func (f *fakeService) Stop() error { return nil }

func TestRegisterNotifyHandlers(t *testing.T) {
	registry := queue.NewRegistry()
	svc := &fakeService{}
	RegisterNotifyHandlers(registry, svc)

	for _, name := range []string{"send_message", "send_payment_reminder", "send_class_notification"} {
		if !registry.Known(store.CategoryNotify, name) {
			t.Errorf("operation %q not registered", name)
		}
	}
	if registry.Known(store.CategoryDB, "send_message") {
		t.Error("notify operation registered under the DB category")
	}
}

func TestHandlerDeliversMessage(t *testing.T) {
	registry := queue.NewRegistry()
	svc := &fakeService{}
	RegisterNotifyHandlers(registry, svc)

	handler, ok := registry.Lookup(store.CategoryNotify, "send_message")
	if !ok {
		t.Fatal("send_message handler not found")
	}
	err := handler(context.Background(), nil, map[string]any{"to": "+5491112345678", "body": "Hola!"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(svc.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(svc.sent))
	}
	if svc.sent[0].to != "+5491112345678" || svc.sent[0].body != "Hola!" {
		t.Errorf("sent = %+v, want kwargs recipient and body", svc.sent[0])
	}
}

func TestHandlerAcceptsLegacyKwargNames(t *testing.T) {
	registry := queue.NewRegistry()
	svc := &fakeService{}
	RegisterNotifyHandlers(registry, svc)

	handler, _ := registry.Lookup(store.CategoryNotify, "send_payment_reminder")
	err := handler(context.Background(), nil, map[string]any{"to_phone": "+54911", "message": "Vence tu cuota"})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(svc.sent) != 1 || svc.sent[0].to != "+54911" || svc.sent[0].body != "Vence tu cuota" {
		t.Errorf("sent = %+v, want legacy kwarg values", svc.sent)
	}
}

func TestHandlerRejectsIncompleteKwargs(t *testing.T) {
	registry := queue.NewRegistry()
	svc := &fakeService{}
	RegisterNotifyHandlers(registry, svc)

	handler, _ := registry.Lookup(store.CategoryNotify, "send_message")

	if err := handler(context.Background(), nil, map[string]any{"body": "no recipient"}); err == nil {
		t.Error("handler accepted kwargs without a recipient")
	}
	if err := handler(context.Background(), nil, map[string]any{"to": "+54911"}); err == nil {
		t.Error("handler accepted kwargs without a body")
	}
	if len(svc.sent) != 0 {
		t.Errorf("sent %d messages on invalid kwargs, want 0", len(svc.sent))
	}
}
