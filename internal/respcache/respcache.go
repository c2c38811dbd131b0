// Package respcache stores HTTP responses in named buckets keyed by request.
//
// It plays the role the browser Cache Storage API plays for a service worker:
// the offline transport opens a bucket per cache version ("static-v1",
// "api-v1"), puts successful GET responses into it and matches requests
// against it when the network is unavailable. Buckets are process-wide and
// not transactional; a sweep racing a put may leave the put behind, which the
// next successful fetch simply overwrites.
package respcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Response is a stored HTTP response.
type Response struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Bucket is one named response cache.
type Bucket interface {
	// Match returns the response stored for key. Missing keys return false
	// with a nil error.
	Match(ctx context.Context, key string) (*Response, bool, error)
	// Put stores resp under key, replacing any previous value.
	Put(ctx context.Context, key string, resp *Response) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists every stored request key.
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds the named buckets.
type Storage interface {
	// Open returns the bucket called name, creating it if needed.
	Open(ctx context.Context, name string) (Bucket, error)
	// Buckets lists bucket names.
	Buckets(ctx context.Context) ([]string, error)
	// Delete drops a bucket and everything in it.
	Delete(ctx context.Context, name string) (bool, error)
}

// Key derives the bucket key for a request: method and URL without fragment.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + u.String()
}

// Capture reads resp's body into a Response and rewinds resp.Body so the
// caller can still hand resp to its own client.
func Capture(resp *http.Response) (*Response, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// HTTPResponse rebuilds an *http.Response answering req. Each call gets its
// own body reader.
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.Status, http.StatusText(r.Status)),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
