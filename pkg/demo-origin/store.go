package origin

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
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

// Store holds the posts and albums served by the demo origin.
type Store struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewStore opens the store with the given filename as the db.
// If file name is empty, a new in-memory db is opened that no other
// store shares.
func NewStore(filename string) (*Store, error) {
	if filename == "" {
		filename = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	// one connection keeps the in-memory db alive and avoids shared cache locking errors
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("Could not create schema: %w", err)
		}
	}
	return &Store{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Posts returns all posts ordered by id.
func (s *Store) Posts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, title, body FROM posts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts := make([]Post, 0)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Body); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Albums returns all albums ordered by id.
func (s *Store) Albums(ctx context.Context) ([]Album, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, title FROM albums ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	albums := make([]Album, 0)
	for rows.Next() {
		var a Album
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title); err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// PutPost inserts or replaces a post.
func (s *Store) PutPost(ctx context.Context, p Post) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO posts (id, user_id, title, body) VALUES (?, ?, ?, ?)",
		p.ID, p.UserID, p.Title, p.Body)
	return err
}

// PutAlbum inserts or replaces an album.
func (s *Store) PutAlbum(ctx context.Context, a Album) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO albums (id, user_id, title) VALUES (?, ?, ?)",
		a.ID, a.UserID, a.Title)
	return err
}

// Seed fills an empty store with the default posts and albums.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, p := range seedPosts {
		if err := s.PutPost(ctx, p); err != nil {
			return fmt.Errorf("Could not seed post %d: %w", p.ID, err)
		}
	}
	for _, a := range seedAlbums {
		if err := s.PutAlbum(ctx, a); err != nil {
			return fmt.Errorf("Could not seed album %d: %w", a.ID, err)
		}
	}
	return nil
}
