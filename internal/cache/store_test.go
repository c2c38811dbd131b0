package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}

	exp := time.Now().Add(time.Hour)
	for _, k := range []string{"b", "a", "c"} {
		if err := s.Set(ctx, k, []byte("v-"+k), exp); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if err := s.Set(ctx, "a", []byte("v-a2"), time.Time{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || string(got) != "v-a2" {
		t.Fatalf("Get(a) = %q, %v, %v; want v-a2", got, ok, err)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}

	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Error("b still present after Delete")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
}

func TestMemoryStore_Quota(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	if err := s.Set(ctx, "k", []byte("12345"), time.Time{}); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := s.Set(ctx, "j", []byte("123456"), time.Time{}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Set over quota err = %v, want ErrQuotaExceeded", err)
	}
	// Replacing a value only counts the difference.
	if err := s.Set(ctx, "k", []byte("123456789"), time.Time{}); err != nil {
		t.Fatalf("replace within quota: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "j", []byte("123456"), time.Time{}); err != nil {
		t.Fatalf("Set after Delete freed space: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	now := time.Now()
	_ = s.Set(ctx, "old", []byte("x"), now.Add(-time.Minute))
	_ = s.Set(ctx, "new", []byte("y"), now.Add(time.Minute))
	_ = s.Set(ctx, "forever", []byte("z"), time.Time{})

	n, err := s.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	keys, _ := s.Keys(ctx)
	if want := []string{"forever", "new"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestSQLiteStore_PurgeKeepsStaleFallback(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	written := time.Now().Add(-2 * time.Hour)
	c := New[string](s, "lessons").WithClock(func() time.Time { return written })
	c.Put(ctx, "lesson", "cached", time.Hour)
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if n, err := s.PurgeExpired(ctx, time.Now()); err != nil || n != 0 {
		t.Fatalf("PurgeExpired = %d, %v; want 0 rows", n, err)
	}

	if v, ok := New[string](s, "lessons").GetStale(ctx, "lesson"); !ok || v != "cached" {
		t.Errorf("GetStale after restart = %q, %v; want cached", v, ok)
	}

	if n, _ := s.PurgeExpired(ctx, written.Add(time.Hour+StaleRetention+time.Second)); n != 1 {
		t.Errorf("purge past retention removed %d rows, want 1", n)
	}
}

func TestDynamoStore_NativeExpiryIncludesRetention(t *testing.T) {
	ctx := context.Background()
	f := newFakeDynamo()
	written := time.Unix(1_700_000_000, 0)
	c := New[string](NewDynamoStore(f, "cache"), "lessons").WithClock(func() time.Time { return written })
	c.Put(ctx, "lesson", "cached", time.Hour)

	item := f.items[StoreKey("lesson")]
	n, ok := item["expiresAt"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatalf("expiresAt attribute missing: %v", item)
	}
	got, _ := strconv.ParseInt(n.Value, 10, 64)
	if want := written.Add(time.Hour + StaleRetention).Unix(); got != want {
		t.Errorf("expiresAt = %d, want %d", got, want)
	}
}

func TestDynamoStore(t *testing.T) {
	exerciseStore(t, NewDynamoStore(newFakeDynamo(), "cache"))
}

func TestDynamoStore_KeysPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "cache")
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		if err := s.Set(ctx, k, []byte("v"), time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 5 {
		t.Errorf("got %d keys, want 5: %v", len(keys), keys)
	}
	if fake.scans != 3 {
		t.Errorf("Scan called %d times, want 3", fake.scans)
	}
}
