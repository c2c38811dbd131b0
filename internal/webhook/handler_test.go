package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sarassure/sarassure/internal/events"
)

const testSecret = "my_test_secret"

type recorder struct {
	changes []events.ContentChanged
	err     error
}

func (r *recorder) handle(_ context.Context, c events.ContentChanged) error {
	r.changes = append(r.changes, c)
	return r.err
}

func post(h http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/_sarassure/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const updatePayload = `{"type":"UPDATE","table":"steps","schema":"public","record":{"id":"s1","position":2},"old_record":{"id":"s1","position":1}}`

func TestEvent_ValidSignature(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(testSecret, rec.handle)

	rr := post(h, updatePayload, Sign(testSecret, []byte(updatePayload)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(rec.changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(rec.changes))
	}
	c := rec.changes[0]
	if c.Entity != "steps" || c.ID != "s1" || c.Action != "update" || c.ChangedAt.IsZero() {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestEvent_DeleteUsesOldRecord(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(testSecret, rec.handle)
	body := `{"type":"DELETE","table":"exercises","schema":"public","record":null,"old_record":{"id":42}}`

	if rr := post(h, body, Sign(testSecret, []byte(body))); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rec.changes[0]; got.ID != "42" || got.Action != "delete" {
		t.Errorf("unexpected change: %+v", got)
	}
}

func TestEvent_InvalidSignature(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(testSecret, rec.handle)

	tests := map[string]string{
		"wrong secret":     Sign("other", []byte(updatePayload)),
		"missing":          "",
		"malformed prefix": "md5=abcdef",
		"not hex":          "sha256=zzzz",
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			if rr := post(h, updatePayload, sig); rr.Code != http.StatusForbidden {
				t.Errorf("expected status 403, got %d", rr.Code)
			}
		})
	}
	if len(rec.changes) != 0 {
		t.Error("unverified delivery reached the change handler")
	}
}

func TestEvent_BadBodies(t *testing.T) {
	h := NewHandler(testSecret, nil)
	for _, body := range []string{"", `{"hello":"world"}`, `not json`} {
		sig := Sign(testSecret, []byte(body))
		if body == "" {
			sig = "sha256=00"
		}
		if rr := post(h, body, sig); rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status 400, got %d", body, rr.Code)
		}
	}
}

func TestEvent_HandlerFailure(t *testing.T) {
	rec := &recorder{err: errors.New("sweep failed")}
	h := NewHandler(testSecret, rec.handle)
	if rr := post(h, updatePayload, Sign(testSecret, []byte(updatePayload))); rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(testSecret, nil)
	req := httptest.NewRequest(http.MethodGet, "/_sarassure/webhook", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rr.Code)
	}
}
