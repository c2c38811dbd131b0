// Package datastore is a small client for the Supabase PostgREST API holding
// exercise content. It covers what the trainer tools and loaders need: list
// exercises and steps, read a step, and persist a step's target area.
//
// Errors from non-2xx responses are *APIError values carrying the HTTP status,
// so retry.Do classifies them without extra glue.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/area"
	"github.com/sarassure/sarassure/internal/events"
)

const (
	restPath       = "/rest/v1"
	defaultTimeout = 15 * time.Second
)

// ErrNotFound is wrapped by APIError when a single-row lookup matched nothing.
var ErrNotFound = errors.New("not found")

// Exercise is a row of the exercises table.
type Exercise struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
}

// Step is a row of the steps table. TargetArea is nil until a trainer places it.
type Step struct {
	ID          string     `json:"id"`
	ExerciseID  string     `json:"exercise_id"`
	Position    int        `json:"position"`
	Instruction string     `json:"instruction"`
	ImageURL    string     `json:"image_url"`
	TargetArea  *area.Area `json:"target_area"`
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`

	err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s (code %s)", e.Status, msg, e.Code)
	}
	return fmt.Sprintf("supabase: %d %s", e.Status, msg)
}

// HTTPStatusCode exposes the response status to retry classification.
func (e *APIError) HTTPStatusCode() int { return e.Status }

func (e *APIError) Unwrap() error { return e.err }

// Client talks to one Supabase project.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	publisher  *events.Publisher
}

var _ area.AreaSaver = (*Client)(nil)

// NewClient creates a client for the project at baseURL. httpClient may be
// nil; pass one built on offline.Transport to get offline fallback.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// WithPublisher makes every successful mutation emit a ContentChanged event.
func (c *Client) WithPublisher(p *events.Publisher) *Client {
	c.publisher = p
	return c
}

// ListExercises returns all exercises ordered by position.
func (c *Client) ListExercises(ctx context.Context) ([]Exercise, error) {
	var out []Exercise
	q := url.Values{"select": {"*"}, "order": {"position.asc"}}
	if err := c.do(ctx, http.MethodGet, "/exercises", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return out, nil
}

// ListSteps returns the steps of one exercise ordered by position.
func (c *Client) ListSteps(ctx context.Context, exerciseID string) ([]Step, error) {
	var out []Step
	q := url.Values{
		"select":      {"*"},
		"exercise_id": {"eq." + exerciseID},
		"order":       {"position.asc"},
	}
	if err := c.do(ctx, http.MethodGet, "/steps", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list steps of exercise %s: %w", exerciseID, err)
	}
	return out, nil
}

// GetStep returns one step. A missing step yields an *APIError with status
// 404 wrapping ErrNotFound.
func (c *Client) GetStep(ctx context.Context, id string) (*Step, error) {
	var out []Step
	q := url.Values{"select": {"*"}, "id": {"eq." + id}}
	if err := c.do(ctx, http.MethodGet, "/steps", q, nil, &out); err != nil {
		return nil, fmt.Errorf("get step %s: %w", id, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("get step %s: %w", id, notFound("step "+id))
	}
	return &out[0], nil
}

// UpdateStepArea replaces the target area of a step and returns the updated
// row. The rectangle is stored as given; callers clamp it first.
func (c *Client) UpdateStepArea(ctx context.Context, stepID string, a area.Area) (*Step, error) {
	var out []Step
	q := url.Values{"id": {"eq." + stepID}, "select": {"*"}}
	body := map[string]any{"target_area": a}
	if err := c.do(ctx, http.MethodPatch, "/steps", q, body, &out); err != nil {
		return nil, fmt.Errorf("update area of step %s: %w", stepID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("update area of step %s: %w", stepID, notFound("step "+stepID))
	}
	log.Info().Str("stepId", stepID).Interface("area", a.Rect).Msg("Step target area updated")

	if err := c.publisher.ContentChanged(ctx, events.ContentChanged{Entity: "steps", ID: stepID, Action: "update"}); err != nil {
		log.Warn().Err(err).Str("stepId", stepID).Msg("Content change not broadcast; caches will expire on their own")
	}
	return &out[0], nil
}

// SaveArea implements area.AreaSaver.
func (c *Client) SaveArea(ctx context.Context, stepID string, a area.Area) error {
	_, err := c.UpdateStepArea(ctx, stepID, a)
	return err
}

func notFound(what string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: what + " not found", err: ErrNotFound}
}

func (c *Client) do(ctx context.Context, method, table string, q url.Values, in, out any) error {
	startTime := time.Now()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + restPath + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	log.Debug().Str("method", method).Str("table", table).Msg("Supabase request")
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Supabase response")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Supabase response")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(raw, apiErr); jerr != nil {
			apiErr.Message = truncate(string(raw), 200)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(raw), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
