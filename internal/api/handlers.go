package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/sms-inbox/internal/client"
	"github.com/LeventeLantos/sms-inbox/internal/model"
	"github.com/LeventeLantos/sms-inbox/internal/repo"
	"github.com/LeventeLantos/sms-inbox/internal/service"
	"github.com/LeventeLantos/sms-inbox/internal/webhook"
)

const maxWebhookBody = 1 << 20

type Inbox interface {
	List(ctx context.Context) ([]model.Message, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error)
	Reply(ctx context.Context, to, message string) (service.ReplyResult, error)
	Receive(ctx context.Context, p webhook.Payload) (model.Message, error)
}

const (
	ModePush = "push"
	ModePull = "pull"
)

type Handler struct {
	inbox        Inbox
	mode         string
	pollInterval time.Duration
}

func NewHandler(inbox Inbox, mode string, pollInterval time.Duration) *Handler {
	if mode == "" {
		mode = ModePush
	}
	return &Handler{inbox: inbox, mode: mode, pollInterval: pollInterval}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ClientConfig tells the UI whether to open a socket or poll.
func (h *Handler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":                h.mode,
		"pollIntervalSeconds": int(h.pollInterval.Seconds()),
	})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	items, err := h.inbox.List(r.Context())
	if err != nil {
		slog.Error("list messages failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, items)
}

type statusRequest struct {
	Status model.Status `json:"status"`
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}

	m, err := h.inbox.UpdateStatus(r.Context(), id, req.Status)
	var vErr *service.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, m)
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Message not found"})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": vErr.Msg})
	default:
		slog.Error("update message failed", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

type replyRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}

	res, err := h.inbox.Reply(r.Context(), req.To, req.Message)

	var (
		vErr  *service.ValidationError
		gwErr *client.GatewaySendError
		sErr  *service.StoreError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"messageId": res.ProviderID,
			"message":   res.Message,
		})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": vErr.Msg})
	case errors.As(err, &gwErr):
		slog.Error("sending sms failed", "to", req.To, "status", gwErr.StatusCode, "details", gwErr.Details)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   "Failed to send SMS",
			"details": gwErr.Details,
		})
	case errors.As(err, &sErr):
		slog.Error("storing reply failed after send", "to", req.To, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to store message",
			"details": sErr.Err.Error(),
		})
	default:
		slog.Error("reply failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to send SMS",
			"details": err.Error(),
		})
	}
}

// Webhook acknowledges the gateway as soon as the message is stored.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unreadable body"})
		return
	}

	payload, enc := webhook.Decode(r.Header.Get("Content-Type"), body)
	slog.Info("webhook received", "encoding", enc.String(), "from", payload.From, "id", payload.ID)

	_, err = h.inbox.Receive(r.Context(), payload)
	var vErr *service.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": vErr.Msg})
	default:
		slog.Error("storing webhook failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to store message"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
