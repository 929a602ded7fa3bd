package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	user_id    TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_images_created_at ON images (created_at DESC);

CREATE TABLE IF NOT EXISTS likes (
	id         TEXT PRIMARY KEY,
	image_id   TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (image_id, user_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	image_id   TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_comments_image_created ON comments (image_id, created_at DESC);
`

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection pool and ensures the schema.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) EnsureActor(ctx context.Context, email, name string) (Actor, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, name, email
	`
	var a Actor
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), name, email).Scan(&a.ID, &a.Name, &a.Email)
	if err != nil {
		return Actor{}, err
	}
	return a, nil
}

func (s *PostgresStore) CreateImage(ctx context.Context, img Image) (Image, error) {
	query := `
		INSERT INTO images (id, title, url, mime_type, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		img.ID, img.Title, img.URL, img.MimeType, img.UserID, img.CreatedAt,
	).Scan(&img.CreatedAt)
	if err != nil {
		return Image{}, err
	}
	return img, nil
}

func (s *PostgresStore) ListImages(ctx context.Context) ([]ImageSummary, error) {
	query := `
		SELECT i.id, i.title, i.url, i.mime_type, i.user_id, i.created_at,
			   (SELECT COUNT(*) FROM likes l WHERE l.image_id = i.id),
			   (SELECT COUNT(*) FROM comments c WHERE c.image_id = i.id),
			   COALESCE(u.name, '')
		FROM images i
		LEFT JOIN users u ON u.id = i.user_id
		ORDER BY i.created_at DESC, i.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ImageSummary, 0)
	for rows.Next() {
		var item ImageSummary
		if err := rows.Scan(
			&item.ID, &item.Title, &item.URL, &item.MimeType, &item.UserID, &item.CreatedAt,
			&item.LikeCount, &item.CommentCount, &item.UserName,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ToggleLike(ctx context.Context, imageID, actorID, newLikeID string) (ToggleResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ToggleResult{}, err
	}
	defer tx.Rollback()

	if err := imageExists(ctx, tx, imageID); err != nil {
		return ToggleResult{}, err
	}

	result := ToggleResult{Action: Unliked}
	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE image_id = $1 AND user_id = $2`, imageID, actorID)
	if err != nil {
		return ToggleResult{}, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return ToggleResult{}, err
	}
	if deleted == 0 {
		result.Action = Liked
		// A concurrent toggle may have inserted first; the unique
		// constraint keeps a single row either way.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO likes (id, image_id, user_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (image_id, user_id) DO NOTHING
		`, newLikeID, imageID, actorID)
		if err != nil {
			return ToggleResult{}, translate(err)
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE image_id = $1`, imageID).Scan(&result.LikeCount); err != nil {
		return ToggleResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ToggleResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, c Comment) (Comment, error) {
	query := `
		WITH inserted AS (
			INSERT INTO comments (id, content, image_id, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, content, image_id, user_id, created_at
		)
		SELECT ins.id, ins.content, ins.image_id, ins.user_id, ins.created_at, COALESCE(u.name, '')
		FROM inserted ins
		LEFT JOIN users u ON u.id = ins.user_id
	`
	var out Comment
	err := s.db.QueryRowContext(ctx, query, c.ID, c.Content, c.ImageID, c.UserID, c.CreatedAt).Scan(
		&out.ID, &out.Content, &out.ImageID, &out.UserID, &out.CreatedAt, &out.UserName,
	)
	if err != nil {
		return Comment{}, translate(err)
	}
	return out, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, imageID string) ([]Comment, error) {
	if err := imageExists(ctx, s.db, imageID); err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.content, c.image_id, c.user_id, c.created_at, COALESCE(u.name, '')
		FROM comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.image_id = $1
		ORDER BY c.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.ImageID, &c.UserID, &c.CreatedAt, &c.UserName); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func imageExists(ctx context.Context, q queryRower, imageID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE id = $1)`, imageID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// translate maps a missing referenced image onto ErrNotFound.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
		return ErrNotFound
	}
	return err
}
