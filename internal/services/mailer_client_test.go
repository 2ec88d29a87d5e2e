package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/soasign/backend/internal/soaerr"
)

func TestMailerClientSend(t *testing.T) {
	var got mailerSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewMailerClient(srv.URL, zap.NewNop())
	err := c.Send(context.Background(), Message{To: "a@b.c", Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "a@b.c" || got.Subject != "s" || got.Body != "b" {
		t.Errorf("payload = %+v", got)
	}
}

func TestMailerClientSuppressed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(mailerErrorResponse{Error: "recipient opted out", Code: "suppressed"})
	}))
	defer srv.Close()

	c := NewMailerClient(srv.URL, zap.NewNop())
	err := c.Send(context.Background(), Message{To: "a@b.c"})

	de, ok := soaerr.AsDelivery(err)
	if !ok {
		t.Fatalf("err = %v, want delivery error", err)
	}
	if !de.Suppressed {
		t.Error("suppression not flagged")
	}
}

func TestMailerClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewMailerClient(srv.URL, zap.NewNop())
	err := c.Send(context.Background(), Message{To: "a@b.c"})

	de, ok := soaerr.AsDelivery(err)
	if !ok {
		t.Fatalf("err = %v, want delivery error", err)
	}
	if de.Suppressed {
		t.Error("suppression flagged on server error")
	}
}

func TestMailerClientUnreachable(t *testing.T) {
	c := NewMailerClient("http://127.0.0.1:1", zap.NewNop())
	err := c.Send(context.Background(), Message{To: "a@b.c"})
	if _, ok := soaerr.AsDelivery(err); !ok {
		t.Fatalf("err = %v, want delivery error", err)
	}
}
