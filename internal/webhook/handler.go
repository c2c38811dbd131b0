// Package webhook receives Supabase database webhooks for content tables and
// turns each row change into an events.ContentChanged.
//
// Supabase posts a JSON payload on every INSERT, UPDATE or DELETE. The
// webhook is configured with an X-Sarassure-Signature header carrying
// "sha256=<hex HMAC-SHA256 of the body>" under a shared secret; unsigned or
// mis-signed deliveries are rejected.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/events"
)

// SignatureHeader carries the body HMAC.
const SignatureHeader = "X-Sarassure-Signature"

// maxBodySize is the maximum allowed request body size (1 MB). A single row
// change, screenshots excluded, stays far below it.
const maxBodySize = 1 << 20

// Payload is the body Supabase sends for a row change.
type Payload struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	Schema    string          `json:"schema"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// ChangeFunc handles a verified change. A returned error makes the handler
// answer 500 so Supabase retries the delivery.
type ChangeFunc func(ctx context.Context, change events.ContentChanged) error

// Handler verifies and decodes Supabase webhooks.
type Handler struct {
	secret   string
	onChange ChangeFunc
}

// NewHandler creates a webhook handler. secret must match the one used to
// sign deliveries.
func NewHandler(secret string, onChange ChangeFunc) *Handler {
	return &Handler{secret: secret, onChange: onChange}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		log.Warn().Msg("Webhook: empty body")
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		log.Warn().Msg("Webhook: missing signature header")
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}
	if !h.verifySignature(body, signature) {
		log.Warn().Msg("Webhook: invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil || p.Table == "" || p.Type == "" {
		log.Warn().Err(err).Int("bodySize", len(body)).Msg("Webhook: not a row change payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	change := p.Change(time.Now().UTC())
	log.Info().
		Str("table", p.Table).
		Str("type", p.Type).
		Str("id", change.ID).
		Msg("Content change received")

	if h.onChange != nil {
		if err := h.onChange(r.Context(), change); err != nil {
			log.Error().Err(err).Str("table", p.Table).Msg("Webhook: change handler failed")
			http.Error(w, "change not applied", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Change converts the payload into a ContentChanged event. The row id is
// read from record, or from old_record for deletes.
func (p Payload) Change(at time.Time) events.ContentChanged {
	return events.ContentChanged{
		Entity:    p.Table,
		ID:        rowID(p.Record, p.OldRecord),
		Action:    strings.ToLower(p.Type),
		ChangedAt: at,
	}
}

func rowID(records ...json.RawMessage) string {
	for _, raw := range records {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var row struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(raw, &row); err != nil || len(row.ID) == 0 {
			continue
		}
		return strings.Trim(string(row.ID), `"`)
	}
	return ""
}

// verifySignature checks "sha256=<hex>" against the HMAC-SHA256 of body,
// comparing in constant time.
func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	receivedBytes, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}

// Sign returns the signature header value for body. Tests and tooling that
// replay deliveries use it.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
