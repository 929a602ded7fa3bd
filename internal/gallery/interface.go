package gallery

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a referenced image does not exist.
var ErrNotFound = errors.New("gallery: not found")

// Store is the persistence contract for the gallery. Implementations must
// enforce at most one actor per email and at most one like per
// (image, actor) pair.
type Store interface {
	// EnsureActor returns the actor with the given email, creating it with
	// name when absent. Concurrent calls never produce duplicates.
	EnsureActor(ctx context.Context, email, name string) (Actor, error)
	CreateImage(ctx context.Context, img Image) (Image, error)
	// ListImages returns every image, newest first, with derived counts.
	ListImages(ctx context.Context) ([]ImageSummary, error)
	// ToggleLike deletes the like for (imageID, actorID) if present and
	// creates it otherwise, then recounts likes for imageID.
	ToggleLike(ctx context.Context, imageID, actorID, newLikeID string) (ToggleResult, error)
	AddComment(ctx context.Context, c Comment) (Comment, error)
	// ListComments returns comments for imageID, newest first.
	ListComments(ctx context.Context, imageID string) ([]Comment, error)
	Close() error
}

// BlobStore persists uploaded file bytes and reports where they are served.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}
