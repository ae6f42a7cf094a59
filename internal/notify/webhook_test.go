package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medgrid/scanflow/internal/config"
)

func TestNewWebhookDisabledWithoutURL(t *testing.T) {
	if w := NewWebhook(nil); w != nil {
		t.Error("nil config must disable the webhook")
	}
	if w := NewWebhook(&config.WebhookConfig{}); w != nil {
		t.Error("empty URL must disable the webhook")
	}
}

func TestJobEventNilReceiver(t *testing.T) {
	var w *Webhook
	// Must not panic.
	w.JobEvent(context.Background(), JobEvent{JobID: "x"})
}

func TestJobEventDelivery(t *testing.T) {
	received := make(chan JobEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev JobEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(&config.WebhookConfig{URL: srv.URL, Timeout: 2 * time.Second})
	if hook == nil {
		t.Fatal("webhook not constructed")
	}
	hook.JobEvent(context.Background(), JobEvent{
		Event:    EventCompleted,
		JobID:    "job-1",
		Modality: "cbct",
		Status:   "completed",
		At:       time.Now(),
	})

	select {
	case ev := <-received:
		if ev.Event != EventCompleted || ev.JobID != "job-1" {
			t.Errorf("unexpected payload: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestJobEventToleratesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(&config.WebhookConfig{URL: srv.URL, Timeout: 2 * time.Second})
	// Best-effort delivery never surfaces errors to the caller.
	hook.JobEvent(context.Background(), JobEvent{Event: EventFailed, JobID: "job-2"})
}
