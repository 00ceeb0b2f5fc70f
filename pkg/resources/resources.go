// Package resources defines the posts and albums queries of a
// JSONPlaceholder style API on top of the query client.
package resources

import (
	"context"
	"strings"

	querycache "github.com/always-cache/querycache"
	cachekey "github.com/always-cache/querycache/pkg/cache-key"
	fetcher "github.com/always-cache/querycache/pkg/resource-fetcher"
	"github.com/always-cache/querycache/pkg/schema"
)

const (
	Posts  = "posts"
	Albums = "albums"
)

type Post struct {
	UserID int64  `json:"userId"`
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type Album struct {
	UserID int64  `json:"userId"`
	ID     int64  `json:"id"`
	Title  string `json:"title"`
}

var PostsSchema = schema.ArrayOf(schema.Record(
	schema.Prop("userId", schema.Integer()),
	schema.Prop("id", schema.Integer()),
	schema.Prop("title", schema.String()),
	schema.Prop("body", schema.String()),
))

var AlbumsSchema = schema.ArrayOf(schema.Record(
	schema.Prop("userId", schema.Integer()),
	schema.Prop("id", schema.Integer()),
	schema.Prop("title", schema.String()),
))

func PostsKey() cachekey.Key {
	return cachekey.MustNew(Posts)
}

// AlbumsKey identifies the albums whose title contains q.
// The empty query is a distinct key that matches all albums.
func AlbumsKey(q string) cachekey.Key {
	return cachekey.MustNew(Albums, q)
}

func GetPosts(f *fetcher.Fetcher) querycache.QueryFunc[[]Post] {
	return func(ctx context.Context) ([]Post, error) {
		return fetcher.Get[[]Post](ctx, f, Posts, PostsSchema)
	}
}

// GetAlbums fetches all albums and keeps the ones matching q.
func GetAlbums(f *fetcher.Fetcher, q string) querycache.QueryFunc[[]Album] {
	return func(ctx context.Context) ([]Album, error) {
		albums, err := fetcher.Get[[]Album](ctx, f, Albums, AlbumsSchema)
		if err != nil {
			return nil, err
		}
		return FilterAlbums(albums, q), nil
	}
}

// FilterAlbums returns the albums whose title contains q, case-sensitively,
// in their original order.
func FilterAlbums(albums []Album, q string) []Album {
	filtered := make([]Album, 0, len(albums))
	for _, album := range albums {
		if strings.Contains(album.Title, q) {
			filtered = append(filtered, album)
		}
	}
	return filtered
}

func UsePosts(c *querycache.Client, f *fetcher.Fetcher, opts querycache.Options) querycache.Result[[]Post] {
	return querycache.Use(c, PostsKey(), GetPosts(f), opts)
}

func UseAlbums(c *querycache.Client, f *fetcher.Fetcher, q string, opts querycache.Options) querycache.Result[[]Album] {
	return querycache.Use(c, AlbumsKey(q), GetAlbums(f, q), opts)
}

func QueryPosts(ctx context.Context, c *querycache.Client, f *fetcher.Fetcher, opts querycache.Options) ([]Post, error) {
	return querycache.Query(ctx, c, PostsKey(), GetPosts(f), opts)
}

func QueryAlbums(ctx context.Context, c *querycache.Client, f *fetcher.Fetcher, q string, opts querycache.Options) ([]Album, error) {
	return querycache.Query(ctx, c, AlbumsKey(q), GetAlbums(f, q), opts)
}

func WatchAlbums(c *querycache.Client, f *fetcher.Fetcher, q string, opts querycache.Options) *querycache.Observer[[]Album] {
	return querycache.Watch(c, AlbumsKey(q), GetAlbums(f, q), opts)
}
