package cli

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sarassure/sarassure/internal/area"
)

func TestPromptFrom(t *testing.T) {
	tests := []struct {
		input string
		def   string
		want  string
	}{
		{"abc\n", "", "abc"},
		{"  spaced  \n", "d", "spaced"},
		{"\n", "d", "d"},
		{"", "d", "d"},
		{"no newline", "", "no newline"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := promptFrom(strings.NewReader(tt.input), &out, "Step", tt.def)
		if got != tt.want {
			t.Errorf("promptFrom(%q, def %q) = %q, want %q", tt.input, tt.def, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Step") {
			t.Errorf("prompt text = %q", out.String())
		}
	}
}

func TestValidateImageFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "screen.PNG")
	if err := os.WriteFile(good, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got, err := ValidateImageFile(good); err != nil || got != good {
		t.Errorf("ValidateImageFile(good) = %q, %v", got, err)
	}
	for _, p := range []string{bad, dir, filepath.Join(dir, "missing.png")} {
		if _, err := ValidateImageFile(p); err == nil {
			t.Errorf("ValidateImageFile(%s) succeeded", p)
		}
	}
}

func TestFormatArea(t *testing.T) {
	a := area.Area{Rect: area.Rect{X: 1, Y: 2, Width: 30, Height: 40}, Color: area.DefaultColor}
	want := "1,2 30x40 rectangle hidden rgba(255, 0, 0, 0.3)"
	if got := FormatArea(a); got != want {
		t.Errorf("FormatArea = %q, want %q", got, want)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetchImageDimensions(t *testing.T) {
	img := pngBytes(t, 360, 640)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/s1.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(img)
	}))
	defer server.Close()

	dims, err := FetchImageDimensions(context.Background(), server.Client(), server.URL+"/s1.png")
	if err != nil {
		t.Fatalf("FetchImageDimensions: %v", err)
	}
	if dims.NaturalWidth != 360 || dims.NaturalHeight != 640 {
		t.Errorf("dims = %+v", dims)
	}
	if _, err := FetchImageDimensions(context.Background(), server.Client(), server.URL+"/gone.png"); err == nil {
		t.Error("expected error for 404")
	}
}

func newSession(initial area.Rect) *area.Session {
	box, dims := NaturalLayout(area.ImageDimensions{NaturalWidth: 400, NaturalHeight: 800})
	return area.NewSession("s1", &area.Area{Rect: initial, Visible: true}, box, dims)
}

func TestDrag(t *testing.T) {
	s := newSession(area.Rect{X: 50, Y: 50, Width: 100, Height: 100})
	got := Drag(s, 30, -20)
	if want := (area.Rect{X: 80, Y: 30, Width: 100, Height: 100}); got != want {
		t.Errorf("Drag = %+v, want %+v", got, want)
	}
	if s.Area().Rect != got {
		t.Error("session area not updated by the editor")
	}

	// Dragging past the edge clamps to the image.
	got = Drag(s, 1000, 1000)
	if want := (area.Rect{X: 300, Y: 700, Width: 100, Height: 100}); got != want {
		t.Errorf("clamped Drag = %+v, want %+v", got, want)
	}
	if !s.Dirty() {
		t.Error("session not dirty after drag")
	}
}

func TestResize(t *testing.T) {
	tests := []struct {
		h      area.Handle
		dx, dy float64
		want   area.Rect
	}{
		{area.HandleBottomRight, 20, 10, area.Rect{X: 50, Y: 50, Width: 120, Height: 110}},
		{area.HandleTopLeft, 20, 10, area.Rect{X: 70, Y: 60, Width: 80, Height: 90}},
		{area.HandleLeft, -60, 0, area.Rect{X: 0, Y: 50, Width: 150, Height: 100}},
		{area.HandleTop, 0, 200, area.Rect{X: 50, Y: 140, Width: 100, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(string(tt.h), func(t *testing.T) {
			s := newSession(area.Rect{X: 50, Y: 50, Width: 100, Height: 100})
			if got := Resize(s, tt.h, tt.dx, tt.dy); got != tt.want {
				t.Errorf("Resize(%s, %v, %v) = %+v, want %+v", tt.h, tt.dx, tt.dy, got, tt.want)
			}
			if s.Editor().State() != area.StateIdle {
				t.Error("editor not idle after gesture")
			}
		})
	}
}
