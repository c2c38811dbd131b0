package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sarassure/sarassure/internal/metrics"
	"github.com/sarassure/sarassure/internal/respcache"
)

type task struct {
	ID    int      `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func init() {
	metrics.SetOutput(io.Discard)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New[[]task](NewMemoryStore(0), "tasks")

	want := []task{{ID: 1, Title: "Call", Tags: []string{"phone"}}, {ID: 2, Title: "SMS"}}
	c.Put(ctx, "tasks", want, 0)

	got, ok := c.Get(ctx, "tasks")
	if !ok {
		t.Fatal("Get returned miss right after Put")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestCache_NamespacedKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	New[string](store, "x").Put(ctx, "tasks", "v", 0)

	keys, _ := store.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"cache:tasks"}) {
		t.Errorf("store keys = %v, want [cache:tasks]", keys)
	}
}

func TestCache_EntryEnvelope(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	clk := newClock()
	New[int](store, "n").WithClock(clk.now).Put(ctx, "n", 7, 90*time.Second)

	raw, _, _ := store.Get(ctx, "cache:n")
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if env["data"] != float64(7) {
		t.Errorf("data = %v, want 7", env["data"])
	}
	if env["timestamp"] != float64(clk.t.UnixMilli()) {
		t.Errorf("timestamp = %v, want %d", env["timestamp"], clk.t.UnixMilli())
	}
	if env["ttl"] != float64(90000) {
		t.Errorf("ttl = %v, want 90000", env["ttl"])
	}
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	clk := newClock()
	c := New[string](store, "s").WithClock(clk.now)

	c.Put(ctx, "k", "v", time.Minute)

	clk.advance(time.Minute - time.Millisecond)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}

	clk.advance(time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("entry still fresh at now - timestamp == ttl")
	}
	if _, ok, _ := store.Get(ctx, "cache:k"); ok {
		t.Error("expired entry not evicted on read")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := New[string](NewMemoryStore(0), "s").WithClock(clk.now)
	if c.TTL() != DefaultTTL {
		t.Fatalf("TTL = %v, want %v", c.TTL(), DefaultTTL)
	}

	c.Put(ctx, "k", "v", -time.Second)
	clk.advance(59 * time.Minute)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("non-positive ttl did not fall back to one hour")
	}
	clk.advance(time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("entry outlived default TTL")
	}
}

func TestCache_GetStaleIgnoresTTL(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := New[string](NewMemoryStore(0), "s").WithClock(clk.now)

	c.Put(ctx, "k", "old", time.Second)
	clk.advance(24 * time.Hour)

	got, ok := c.GetStale(ctx, "k")
	if !ok || got != "old" {
		t.Errorf("GetStale = %q, %v; want old, true", got, ok)
	}
}

func TestCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := New[string](NewMemoryStore(0), "s")
	c.Put(ctx, "k", "a", 0)
	c.Put(ctx, "k", "b", 0)
	if got, _ := c.Get(ctx, "k"); got != "b" {
		t.Errorf("Get = %q, want b", got)
	}
}

func TestCache_MalformedIsEvicted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c := New[task](store, "t")

	tests := map[string]string{
		"not json":     "{",
		"no envelope":  `{"id":1}`,
		"wrong type":   `{"data":"text","timestamp":1,"ttl":1000}`,
		"zero ttl":     `{"data":{"id":1},"timestamp":1,"ttl":0}`,
		"no timestamp": `{"data":{"id":1},"ttl":1000}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_ = store.Set(ctx, "cache:t", []byte(raw), time.Time{})
			if _, ok := c.GetStale(ctx, "t"); ok {
				t.Fatal("malformed entry returned")
			}
			if _, ok, _ := store.Get(ctx, "cache:t"); ok {
				t.Error("malformed entry not evicted")
			}
		})
	}
}

func TestCache_Validator(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c := New[task](store, "t").WithValidator(func(v task) error {
		if v.Title == "" {
			return errors.New("missing title")
		}
		return nil
	})

	c.Put(ctx, "ok", task{ID: 1, Title: "Call"}, 0)
	c.Put(ctx, "bad", task{ID: 2}, 0)

	if _, ok := c.Get(ctx, "ok"); !ok {
		t.Error("valid entry rejected")
	}
	if _, ok := c.Get(ctx, "bad"); ok {
		t.Error("invalid entry returned")
	}
	if _, ok, _ := store.Get(ctx, "cache:bad"); ok {
		t.Error("invalid entry not evicted")
	}
}

type failingStore struct{ Store }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}

func (failingStore) Set(context.Context, string, []byte, time.Time) error {
	return ErrQuotaExceeded
}

func TestCache_StoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	c := New[string](failingStore{NewMemoryStore(0)}, "s")

	c.Put(ctx, "k", "v", 0)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get on failing store reported a hit")
	}
	if _, ok := c.GetStale(ctx, "k"); ok {
		t.Error("GetStale on failing store reported a hit")
	}
}

func TestCache_QuotaExceededLeavesOldEntry(t *testing.T) {
	ctx := context.Background()
	c := New[string](NewMemoryStore(200), "s")

	c.Put(ctx, "k", "small", 0)
	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}
	c.Put(ctx, "k", string(big), 0)

	if got, _ := c.Get(ctx, "k"); got != "small" {
		t.Errorf("Get = %q, want the entry written before the quota failure", got)
	}
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	_ = store.Set(ctx, "cache:tasks", []byte("1"), time.Time{})
	_ = store.Set(ctx, "cache:images", []byte("2"), time.Time{})
	_ = store.Set(ctx, "theme", []byte("dark"), time.Time{})

	responses := respcache.NewMemoryStorage()
	for _, name := range []string{"sarassure-v1", "sarassure-api-v1"} {
		if _, err := responses.Open(ctx, name); err != nil {
			t.Fatal(err)
		}
	}

	res := InvalidateAll(ctx, store, responses)
	if err := res.Err(); err != nil {
		t.Fatalf("InvalidateAll err: %v", err)
	}
	if res.Keys != 2 || res.Buckets != 2 {
		t.Errorf("result = %+v, want 2 keys and 2 buckets", res)
	}

	keys, _ := store.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"theme"}) {
		t.Errorf("remaining keys = %v, want [theme]", keys)
	}
	names, _ := responses.Buckets(ctx)
	if len(names) != 0 {
		t.Errorf("remaining buckets = %v, want none", names)
	}
}

type brokenKeys struct{ *MemoryStore }

func (brokenKeys) Keys(context.Context) ([]string, error) {
	return nil, errors.New("enumeration failed")
}

func TestInvalidateAll_PhasesAreIndependent(t *testing.T) {
	ctx := context.Background()
	responses := respcache.NewMemoryStorage()
	_, _ = responses.Open(ctx, "sarassure-v1")

	res := InvalidateAll(ctx, brokenKeys{NewMemoryStore(0)}, responses)
	if res.StoreErr == nil {
		t.Error("StoreErr = nil, want enumeration failure")
	}
	if res.ResponseErr != nil {
		t.Errorf("ResponseErr = %v, want nil", res.ResponseErr)
	}
	if res.Buckets != 1 {
		t.Errorf("Buckets = %d, want 1 despite store failure", res.Buckets)
	}
}

func TestInvalidateAll_NilArguments(t *testing.T) {
	res := InvalidateAll(context.Background(), nil, nil)
	if res.Err() != nil || res.Keys != 0 || res.Buckets != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestCache_LookupKeepsExpired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := New[string](NewMemoryStore(0), "s").WithClock(clk.now)
	c.Put(ctx, "k", "v", time.Second)
	clk.advance(time.Hour)

	v, fresh, ok := c.Lookup(ctx, "k")
	if !ok || fresh || v != "v" {
		t.Fatalf("Lookup = %q, fresh %v, ok %v; want v, false, true", v, fresh, ok)
	}
	if _, ok := c.GetStale(ctx, "k"); !ok {
		t.Error("Lookup evicted an expired entry")
	}
}
