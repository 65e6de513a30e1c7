package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type senderFunc func(ctx context.Context, msg Message) error

func (f senderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

func TestHandler_HandleSend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
		wantSent   bool
	}{
		{"valid message", `{"to":"ana@example.com","subject":"Order Confirmation: 1","body":"thanks"}`, nil, http.StatusOK, true},
		{"missing recipient", `{"subject":"hi"}`, nil, http.StatusBadRequest, false},
		{"invalid recipient", `{"to":"not an address"}`, nil, http.StatusBadRequest, false},
		{"malformed body", `{"to":`, nil, http.StatusBadRequest, false},
		{"delivery failure", `{"to":"ana@example.com","subject":"s"}`, errors.New("smtp down"), http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent []Message
			handler := NewHandler(senderFunc(func(_ context.Context, msg Message) error {
				sent = append(sent, msg)
				return tt.sendErr
			}), logger)

			req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.HandleSend(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantSent != (len(sent) == 1) {
				t.Errorf("expected sent=%v, got %d messages", tt.wantSent, len(sent))
			}
		})
	}
}

func TestHandler_HandleSend_LogSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(NewLogSender(logger), logger)

	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"to":"ana@example.com","subject":"hi"}`))
	rec := httptest.NewRecorder()
	handler.HandleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
