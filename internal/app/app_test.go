package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dywsy21/wechat2pdf/internal/extract"
	"github.com/dywsy21/wechat2pdf/internal/render"
)

const articleHTML = `<article><h1>Title</h1><p>Hello <b>world</b></p><img src="/pic.png"></article>`

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// newArticleServer serves a minimal article page plus its one image. The
// image handler can be swapped to simulate CDN failures.
func newArticleServer(t *testing.T, imageHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/s/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/pic.png", imageHandler)
	return httptest.NewServer(mux)
}

func newTestApp(t *testing.T, articleURL, outPath string) *App {
	t.Helper()
	a, err := New(Config{
		ArticleURL:       articleURL,
		OutputPath:       outPath,
		ImageConcurrency: 1,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestRun_EndToEnd(t *testing.T) {
	fixture := pngFixture(t)
	srv := newArticleServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	})
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "out.pdf")
	a := newTestApp(t, srv.URL+"/s/a", outPath)

	result, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.OutputPath != outPath {
		t.Fatalf("expected result path %q, got %q", outPath, result.OutputPath)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected clean run, warnings: %v", result.Warnings)
	}
	if a.Stage() != StageDone {
		t.Fatalf("expected StageDone, got %v", a.Stage())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
	if !bytes.Contains(data, []byte("/Image")) {
		t.Fatalf("expected the fetched image embedded in the PDF")
	}
}

func TestRun_ImageFailureIsDegradedSuccess(t *testing.T) {
	srv := newArticleServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "out.pdf")
	a := newTestApp(t, srv.URL+"/s/a", outPath)

	result, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("image failure must not fail the run: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "could not be fetched") {
		t.Fatalf("unexpected warning text: %q", result.Warnings[0])
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
	if bytes.Contains(data, []byte("/Image")) {
		t.Fatalf("failed image should not be embedded")
	}
}

func TestRun_StructureNotFoundWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div class="unrelated">nothing here</div></body></html>`))
	}))
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "out.pdf")
	a := newTestApp(t, srv.URL, outPath)

	_, err := a.Run(context.Background())
	if !errors.Is(err, extract.ErrStructureNotFound) {
		t.Fatalf("expected ErrStructureNotFound, got %v", err)
	}
	if a.Stage() != StageFailed {
		t.Fatalf("expected StageFailed, got %v", a.Stage())
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatalf("no output file may exist after a fatal error")
	}
}

func TestRun_EmptyContainerIsEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="js_content"><p>  </p></div></body></html>`))
	}))
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "out.pdf")
	a := newTestApp(t, srv.URL, outPath)

	_, err := a.Run(context.Background())
	if !errors.Is(err, render.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	for _, bad := range []string{"", "not a url", "ftp://example.com/a", "mp.weixin.qq.com/s/a"} {
		if _, err := New(Config{ArticleURL: bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
