package gallery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
)

// MaxUploadBytes is the largest accepted upload, inclusive.
const MaxUploadBytes = 5 * 1024 * 1024

// MaxCommentLength bounds comment content, counted in characters.
const MaxCommentLength = 2000

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// AllowedMimeType reports whether uploads of mimeType are accepted.
func AllowedMimeType(mimeType string) bool {
	return allowedMimeTypes[strings.ToLower(strings.TrimSpace(mimeType))]
}

// UploadInput is a single file received from a client.
type UploadInput struct {
	Data         []byte
	OriginalName string `validate:"required"`
	MimeType     string `validate:"required"`
}

type commentInput struct {
	Content string `validate:"required,max=2000"`
}

// Service implements the gallery operations on top of a Store and a
// BlobStore. It holds no mutable state of its own.
type Service struct {
	store    Store
	blobs    BlobStore
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, blobs BlobStore, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		log:      log.With().Str("component", "gallery").Logger(),
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolveAnonymousActor returns the shared anonymous actor, creating it on
// first use. Uniqueness of the email is enforced by the store.
func (s *Service) ResolveAnonymousActor(ctx context.Context) (Actor, error) {
	a, err := s.store.EnsureActor(ctx, AnonymousHandle, AnonymousName)
	if err != nil {
		return Actor{}, apperr.Internal("resolve anonymous actor", err)
	}
	return a, nil
}

// StoreUpload validates and persists an uploaded file, then records an Image
// owned by actor. Nothing is written when validation fails.
func (s *Service) StoreUpload(ctx context.Context, actor Actor, in UploadInput) (Image, error) {
	if len(in.Data) == 0 && in.OriginalName == "" {
		return Image{}, apperr.Validation("No file provided")
	}
	if err := s.validate.Struct(in); err != nil {
		return Image{}, validationError(err)
	}
	if len(in.Data) == 0 {
		return Image{}, apperr.Validation("Uploaded file is empty")
	}
	if len(in.Data) > MaxUploadBytes {
		return Image{}, apperr.Validation("File too large. Maximum size is 5MB.")
	}
	if !AllowedMimeType(in.MimeType) {
		return Image{}, apperr.Validation("Invalid file type. Only JPEG, PNG and GIF are allowed.")
	}

	key := uuid.NewString() + filepath.Ext(filepath.Base(in.OriginalName))
	url, err := s.blobs.Put(ctx, key, in.Data, in.MimeType)
	if err != nil {
		return Image{}, apperr.Internal("store upload", err)
	}

	img, err := s.store.CreateImage(ctx, Image{
		ID:        uuid.NewString(),
		Title:     in.OriginalName,
		URL:       url,
		MimeType:  strings.ToLower(in.MimeType),
		UserID:    actor.ID,
		CreatedAt: s.now(),
	})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", key).Msg("orphaned upload could not be removed")
		}
		return Image{}, apperr.Internal("create image", err)
	}

	s.log.Info().Str("image_id", img.ID).Str("url", img.URL).Int("bytes", len(in.Data)).Msg("image uploaded")
	return img, nil
}

// ListImages returns every image newest first with derived like and comment
// counts. Any other ordering is left to the client.
func (s *Service) ListImages(ctx context.Context) ([]ImageSummary, error) {
	items, err := s.store.ListImages(ctx)
	if err != nil {
		return nil, apperr.Internal("list images", err)
	}
	return items, nil
}

// ToggleLike flips the like of actor on imageID and returns the transition
// together with a freshly counted total.
func (s *Service) ToggleLike(ctx context.Context, imageID string, actor Actor) (ToggleResult, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return ToggleResult{}, apperr.Validation("image id is required")
	}
	res, err := s.store.ToggleLike(ctx, imageID, actor.ID, uuid.NewString())
	if errors.Is(err, ErrNotFound) {
		return ToggleResult{}, apperr.NotFound(fmt.Sprintf("image %s not found", imageID))
	}
	if err != nil {
		return ToggleResult{}, apperr.Internal("toggle like", err)
	}
	return res, nil
}

// AddComment appends a comment by actor. Content is trimmed first and must
// not be empty.
func (s *Service) AddComment(ctx context.Context, imageID string, actor Actor, content string) (Comment, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return Comment{}, apperr.Validation("image id is required")
	}
	in := commentInput{Content: strings.TrimSpace(content)}
	if err := s.validate.Struct(in); err != nil {
		return Comment{}, validationError(err)
	}

	c, err := s.store.AddComment(ctx, Comment{
		ID:        uuid.NewString(),
		Content:   in.Content,
		ImageID:   imageID,
		UserID:    actor.ID,
		CreatedAt: s.now(),
	})
	if errors.Is(err, ErrNotFound) {
		return Comment{}, apperr.NotFound(fmt.Sprintf("image %s not found", imageID))
	}
	if err != nil {
		return Comment{}, apperr.Internal("add comment", err)
	}
	return c, nil
}

// ListComments returns the comments of imageID, newest first.
func (s *Service) ListComments(ctx context.Context, imageID string) ([]Comment, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return nil, apperr.Validation("image id is required")
	}
	comments, err := s.store.ListComments(ctx, imageID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("image %s not found", imageID))
	}
	if err != nil {
		return nil, apperr.Internal("list comments", err)
	}
	return comments, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation(err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		if field == "content" {
			return apperr.Validation("Comment content is required")
		}
		return apperr.Validation(field + " is required")
	case "max":
		return apperr.Validation(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	default:
		return apperr.Validation(fmt.Sprintf("%s is invalid", field))
	}
}
