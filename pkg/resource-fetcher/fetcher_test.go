package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/querycache/pkg/schema"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)

var albumsSchema = schema.ArrayOf(schema.Record(
	schema.Prop("userId", schema.Integer()),
	schema.Prop("id", schema.Integer()),
	schema.Prop("title", schema.String()),
))

type album struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
}

func startServer(t *testing.T, status int, body string) (*Fetcher, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("Request id not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Logger: &testLogger}), &calls
}

func TestFetchValid(t *testing.T) {
	f, calls := startServer(t, http.StatusOK, `[{"userId":1,"id":1,"title":"quidem molestiae enim"}]`)
	albums, err := Get[[]album](context.Background(), f, "albums", albumsSchema)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if len(albums) != 1 || albums[0].ID != 1 || albums[0].Title != "quidem molestiae enim" {
		t.Fatalf("Albums: %+v", albums)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("Server called %d times", atomic.LoadInt32(calls))
	}
}

func TestFetchHTTPStatus(t *testing.T) {
	f, calls := startServer(t, http.StatusServiceUnavailable, `oops`)
	_, err := f.Fetch(context.Background(), "albums", albumsSchema)
	var serr *HTTPStatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Unexpected error %v", err)
	}
	if KindOf(err) != KindHTTPStatus || !Retryable(err) {
		t.Fatalf("Wrong classification for %v", err)
	}
	// no internal retry
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("Server called %d times", atomic.LoadInt32(calls))
	}
}

func TestFetchNotFoundNotRetryable(t *testing.T) {
	f, _ := startServer(t, http.StatusNotFound, `{}`)
	_, err := f.Fetch(context.Background(), "albums", albumsSchema)
	if KindOf(err) != KindHTTPStatus || Retryable(err) {
		t.Fatalf("Wrong classification for %v", err)
	}
}

func TestFetchMalformedJSON(t *testing.T) {
	for _, body := range []string{`[{"id":`, ``, `[] []`} {
		f, _ := startServer(t, http.StatusOK, body)
		_, err := f.Fetch(context.Background(), "albums", albumsSchema)
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Fatalf("Body %q: unexpected error %v", body, err)
		}
	}
}

func TestFetchValidationError(t *testing.T) {
	f, _ := startServer(t, http.StatusOK, `[{"userId":1,"id":"1","title":"x"}]`)
	_, err := f.Fetch(context.Background(), "albums", albumsSchema)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Unexpected error %v", err)
	}
	if verr.Field != "id" {
		t.Fatalf("Field is %s", verr.Field)
	}
	var serr *schema.ValidationError
	if !errors.As(err, &serr) || serr.Path != "[0].id" {
		t.Fatalf("Schema error not unwrapped: %v", err)
	}
	if Retryable(err) {
		t.Fatal("Validation errors must not be retryable")
	}
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	f := New(Config{BaseURL: url, Logger: &testLogger})
	_, err := f.Fetch(context.Background(), "albums", albumsSchema)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Unexpected error %v", err)
	}
	if KindOf(err) != KindTransport {
		t.Fatalf("Kind is %s", KindOf(err))
	}
}

func TestFetchCanceledContext(t *testing.T) {
	f, _ := startServer(t, http.StatusOK, `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, "albums", albumsSchema)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Unexpected error %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	httpClient := &http.Client{}
	f := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, HTTPClient: httpClient, Logger: &testLogger})
	_, err := f.Fetch(context.Background(), "albums", albumsSchema)
	var terr *TransportError
	if !errors.As(err, &terr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Error: %v", err)
	}
	if httpClient.Timeout != 0 {
		t.Fatalf("Timeout set on the given client: %v", httpClient.Timeout)
	}
}

func TestURL(t *testing.T) {
	f := New(Config{BaseURL: "https://example.com/", Logger: &testLogger})
	if u := f.URL("posts"); u != "https://example.com/posts" {
		t.Fatalf("URL is %s", u)
	}
	if u := f.URL("/posts"); u != "https://example.com/posts" {
		t.Fatalf("URL is %s", u)
	}
	if u := f.URL("http://other.test/albums"); u != "http://other.test/albums" {
		t.Fatalf("URL is %s", u)
	}
}
