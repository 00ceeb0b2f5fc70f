package resources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	querycache "github.com/always-cache/querycache"
	origin "github.com/always-cache/querycache/pkg/demo-origin"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"
	"github.com/always-cache/querycache/pkg/schema"

	"github.com/rs/zerolog"
)

var testLogger zerolog.Logger

func init() {
	testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)
}

type testOrigin struct {
	store *origin.Store
	calls int32
	url   string
}

func startOrigin(t *testing.T, latency time.Duration) *testOrigin {
	store, err := origin.NewStore("")
	if err != nil {
		t.Fatalf("Could not open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Could not seed store: %v", err)
	}
	o := &testOrigin{store: store}
	router := origin.NewServer(origin.Config{Store: store, Logger: &testLogger, Latency: latency}).Router()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&o.calls, 1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	o.url = server.URL
	return o
}

func (o *testOrigin) Calls() int32 {
	return atomic.LoadInt32(&o.calls)
}

func newClient(t *testing.T, url string) (*querycache.Client, *fetcher.Fetcher) {
	c := querycache.CreateClient(querycache.Config{Logger: &testLogger})
	t.Cleanup(c.Close)
	return c, fetcher.New(fetcher.Config{BaseURL: url, Logger: &testLogger})
}

func waitSettled[T any](t *testing.T, use func() querycache.Result[T]) querycache.Result[T] {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r := use(); r.Fresh() || r.Status == querycache.StatusError {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Query did not settle")
	return querycache.Result[T]{}
}

func TestUsePosts(t *testing.T) {
	o := startOrigin(t, 20*time.Millisecond)
	c, f := newClient(t, o.url)

	first := UsePosts(c, f, querycache.Options{})
	if first.Status != querycache.StatusLoading || first.HasData {
		t.Fatalf("First result: %+v", first)
	}
	r := waitSettled(t, func() querycache.Result[[]Post] { return UsePosts(c, f, querycache.Options{}) })
	if r.Status != querycache.StatusSuccess || len(r.Data) == 0 {
		t.Fatalf("Result: %+v", r)
	}
	if r.Data[0].ID != 1 || r.Data[0].UserID != 1 || r.Data[0].Title == "" {
		t.Fatalf("First post: %+v", r.Data[0])
	}
	if o.Calls() != 1 {
		t.Fatalf("Origin called %d times", o.Calls())
	}

	// served from cache
	again := UsePosts(c, f, querycache.Options{})
	if !again.Fresh() || again.Data[0].ID != 1 {
		t.Fatalf("Cached result: %+v", again)
	}
	if o.Calls() != 1 {
		t.Fatalf("Origin called %d times", o.Calls())
	}
}

func TestQueryAlbumsFiltered(t *testing.T) {
	o := startOrigin(t, 0)
	c, f := newClient(t, o.url)

	albums, err := QueryAlbums(context.Background(), c, f, "quia", querycache.Options{})
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	ids := make([]int64, 0)
	for _, a := range albums {
		if !strings.Contains(a.Title, "quia") {
			t.Fatalf("Album %d does not match: %s", a.ID, a.Title)
		}
		ids = append(ids, a.ID)
	}
	if len(ids) != 3 || ids[0] != 7 || ids[1] != 18 || ids[2] != 19 {
		t.Fatalf("Album ids: %v", ids)
	}

	// case-sensitive
	upper, err := QueryAlbums(context.Background(), c, f, "Quia", querycache.Options{})
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if len(upper) != 0 {
		t.Fatalf("Got %d albums for Quia", len(upper))
	}

	// empty query is its own key and matches everything
	all, err := QueryAlbums(context.Background(), c, f, "", querycache.Options{})
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("Got %d albums", len(all))
	}
	if o.Calls() != 3 {
		t.Fatalf("Origin called %d times", o.Calls())
	}
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"userId":1,"id":"1","title":"t","body":"b"}]`))
	}))
	defer server.Close()
	c, f := newClient(t, server.URL)

	obs := querycache.Watch(c, PostsKey(), GetPosts(f), querycache.Options{})
	defer obs.Close()
	r := waitFor(t, obs, func(r querycache.Result[[]Post]) bool { return r.Status == querycache.StatusError })
	if r.HasData {
		t.Fatalf("Result: %+v", r)
	}
	var verr *schema.ValidationError
	if !errors.As(r.Err, &verr) || verr.Field != "id" {
		t.Fatalf("Error: %v", r.Err)
	}
	if fetcher.KindOf(r.Err) != fetcher.KindValidation {
		t.Fatalf("Kind is %s", fetcher.KindOf(r.Err))
	}
	if r.CacheStatus() != "QueryCache; error; detail=validation" {
		t.Fatalf("Cache status is %q", r.CacheStatus())
	}

	// blocking queries report the same error
	if _, err := QueryPosts(context.Background(), c, f, querycache.Options{}); !errors.As(err, &verr) {
		t.Fatalf("Error: %v", err)
	}
}

func TestConcurrentQueriesShareFetch(t *testing.T) {
	o := startOrigin(t, 50*time.Millisecond)
	c, f := newClient(t, o.url)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			albums, err := QueryAlbums(context.Background(), c, f, "quia", querycache.Options{})
			if err == nil && len(albums) != 3 {
				err = errors.New("wrong number of albums")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Error: %v", err)
		}
	}
	if o.Calls() != 1 {
		t.Fatalf("Origin called %d times", o.Calls())
	}
}

func TestInvalidateRefetchesWatched(t *testing.T) {
	o := startOrigin(t, 0)
	c, f := newClient(t, o.url)

	obs := WatchAlbums(c, f, "quia", querycache.Options{})
	defer obs.Close()
	r := waitFor(t, obs, func(r querycache.Result[[]Album]) bool { return r.Fresh() })
	if len(r.Data) != 3 {
		t.Fatalf("Result: %+v", r)
	}

	if err := o.store.PutAlbum(context.Background(), origin.Album{UserID: 1, ID: 3, Title: "omnis quia odio"}); err != nil {
		t.Fatalf("Error: %v", err)
	}
	refetched := c.Invalidate(AlbumsKey(""))
	if len(refetched) != 0 {
		t.Fatalf("Only the quia key is observed, got %v", refetched)
	}
	refetched = c.Invalidate(AlbumsKey("quia"))
	if len(refetched) != 1 {
		t.Fatalf("Refetched %v", refetched)
	}
	r = waitFor(t, obs, func(r querycache.Result[[]Album]) bool { return r.Fresh() && len(r.Data) == 4 })
	if r.Data[0].ID != 3 {
		t.Fatalf("Result after invalidation: %+v", r)
	}
	if o.Calls() != 2 {
		t.Fatalf("Origin called %d times", o.Calls())
	}
}

// waitFor reads results from obs until one satisfies ok.
func waitFor[T any](t *testing.T, obs *querycache.Observer[T], ok func(querycache.Result[T]) bool) querycache.Result[T] {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, open := <-obs.Results():
			if !open {
				t.Fatal("Observer closed")
			}
			if ok(r) {
				return r
			}
		case <-timeout:
			t.Fatal("No matching result")
		}
	}
}
