package enrich

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/memory"
)

const sdsPage = `<!doctype html>
<html>
<head><title>Ethanol SDS</title><style>body{color:red}</style></head>
<body>
<header>Site header</header>
<nav><a href="/">Home</a> | <a href="/products">Products</a></nav>
<script>var tracking = "UN 9999";</script>
<div style="display:none">hidden UN 8888</div>
<h1>Safety Data Sheet: Ethanol</h1>
<h2>Section 14: Transport information</h2>
<p>UN number: <strong>UN 1170</strong></p>
<table><tr><td>Hazard class</td><td>3</td></tr><tr><td>Packing group</td><td>II</td></tr></table>
<footer>Copyright</footer>
</body>
</html>`

func TestHTTPFetcher_ExtractsVisibleContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, sdsPage)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{Timeout: time.Second}, nil, nil, nil)
	text, err := f.Fetch(context.Background(), srv.URL+"/ethanol")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	for _, want := range []string{"Ethanol", "UN 1170", "Hazard class"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in page text:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"9999", "8888", "Site header", "Copyright", "color:red"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("boilerplate %q leaked into page text:\n%s", unwanted, text)
		}
	}
}

func TestHTTPFetcher_TruncatesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, strings.Repeat("a", 10000))
	}))
	defer srv.Close()

	cache := memory.New(nil)
	f := NewHTTPFetcher(Config{MaxChars: 100}, nil, cache, nil)

	for i := 0; i < 2; i++ {
		text, err := f.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(text) != 100 {
			t.Errorf("expected 100 chars, got %d", len(text))
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("second fetch should hit the page cache, server saw %d requests", n)
	}
}

func TestHTTPFetcher_CacheKeepsPathCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "page "+r.URL.Path)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{Timeout: time.Second}, nil, memory.New(nil), nil)

	a, err := f.Fetch(context.Background(), srv.URL+"/SDS/A.html")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Fetch(context.Background(), srv.URL+"/sds/a.html")
	if err != nil {
		t.Fatal(err)
	}
	if a != "page /SDS/A.html" || b != "page /sds/a.html" {
		t.Errorf("pages mixed up: a=%q b=%q", a, b)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "%PDF-1.4")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{Timeout: time.Second}, nil, nil, nil)

	for _, u := range []string{srv.URL + "/missing", srv.URL + "/pdf", "ftp://example.com/x", "not a url"} {
		_, err := f.Fetch(context.Background(), u)
		var ee *domain.EnrichmentError
		if !errors.As(err, &ee) {
			t.Errorf("Fetch(%s): expected EnrichmentError, got %v", u, err)
		}
	}
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	f := NewHTTPFetcher(Config{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://example.com/sds")
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
