package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type like struct {
	ID      string `json:"id"`
	ImageID string `json:"imageId"`
	UserID  string `json:"userId"`
}

type snapshot struct {
	Actors   []Actor   `json:"actors"`
	Images   []Image   `json:"images"`
	Likes    []like    `json:"likes"`
	Comments []Comment `json:"comments"`
}

// MemoryStore keeps the gallery in process memory, optionally mirrored to a
// JSON file after every write.
type MemoryStore struct {
	mu       sync.RWMutex
	filePath string

	actors   map[string]Actor // keyed by email
	images   map[string]Image
	likes    map[string]like // keyed by imageID + "/" + userID
	comments []Comment
}

// NewMemoryStore creates a store. A non-empty filePath is loaded if it exists
// and rewritten on every mutation.
func NewMemoryStore(filePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		filePath: filePath,
		actors:   make(map[string]Actor),
		images:   make(map[string]Image),
		likes:    make(map[string]like),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func likeKey(imageID, userID string) string { return imageID + "/" + userID }

func (s *MemoryStore) EnsureActor(ctx context.Context, email, name string) (Actor, error) {
	if err := ctx.Err(); err != nil {
		return Actor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.actors[email]; ok {
		return a, nil
	}
	a := Actor{ID: uuid.NewString(), Name: name, Email: email}
	s.actors[email] = a
	if err := s.save(); err != nil {
		delete(s.actors, email)
		return Actor{}, err
	}
	return a, nil
}

func (s *MemoryStore) CreateImage(ctx context.Context, img Image) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[img.ID]; ok {
		return Image{}, fmt.Errorf("image %s already exists", img.ID)
	}
	if s.actorByID(img.UserID) == nil {
		return Image{}, fmt.Errorf("unknown actor %s", img.UserID)
	}
	s.images[img.ID] = img
	if err := s.save(); err != nil {
		delete(s.images, img.ID)
		return Image{}, err
	}
	return img, nil
}

func (s *MemoryStore) ListImages(ctx context.Context) ([]ImageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	likeCounts := make(map[string]int)
	for _, l := range s.likes {
		likeCounts[l.ImageID]++
	}
	commentCounts := make(map[string]int)
	for _, c := range s.comments {
		commentCounts[c.ImageID]++
	}

	out := make([]ImageSummary, 0, len(s.images))
	for _, img := range s.images {
		summary := ImageSummary{
			Image:        img,
			LikeCount:    likeCounts[img.ID],
			CommentCount: commentCounts[img.ID],
		}
		if a := s.actorByID(img.UserID); a != nil {
			summary.UserName = a.Name
		}
		out = append(out, summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, imageID, actorID, newLikeID string) (ToggleResult, error) {
	if err := ctx.Err(); err != nil {
		return ToggleResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[imageID]; !ok {
		return ToggleResult{}, ErrNotFound
	}

	result := ToggleResult{Action: Liked}
	key := likeKey(imageID, actorID)
	prev, existed := s.likes[key]
	if existed {
		delete(s.likes, key)
		result.Action = Unliked
	} else {
		s.likes[key] = like{ID: newLikeID, ImageID: imageID, UserID: actorID}
	}

	if err := s.save(); err != nil {
		// Undo the flip so a retry toggles from the same state.
		if existed {
			s.likes[key] = prev
		} else {
			delete(s.likes, key)
		}
		return ToggleResult{}, err
	}

	for _, l := range s.likes {
		if l.ImageID == imageID {
			result.LikeCount++
		}
	}
	return result, nil
}

func (s *MemoryStore) AddComment(ctx context.Context, c Comment) (Comment, error) {
	if err := ctx.Err(); err != nil {
		return Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[c.ImageID]; !ok {
		return Comment{}, ErrNotFound
	}
	a := s.actorByID(c.UserID)
	if a == nil {
		return Comment{}, fmt.Errorf("unknown actor %s", c.UserID)
	}
	c.UserName = ""
	s.comments = append(s.comments, c)
	if err := s.save(); err != nil {
		s.comments = s.comments[:len(s.comments)-1]
		return Comment{}, err
	}
	c.UserName = a.Name
	return c, nil
}

func (s *MemoryStore) ListComments(ctx context.Context, imageID string) ([]Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.images[imageID]; !ok {
		return nil, ErrNotFound
	}

	out := make([]Comment, 0)
	// Appended in creation order, so walking backwards yields newest first.
	for i := len(s.comments) - 1; i >= 0; i-- {
		c := s.comments[i]
		if c.ImageID != imageID {
			continue
		}
		if a := s.actorByID(c.UserID); a != nil {
			c.UserName = a.Name
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// actorByID must be called with s.mu held.
func (s *MemoryStore) actorByID(id string) *Actor {
	for _, a := range s.actors {
		if a.ID == id {
			return &a
		}
	}
	return nil
}

func (s *MemoryStore) load() error {
	if s.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, a := range snap.Actors {
		s.actors[a.Email] = a
	}
	for _, img := range snap.Images {
		s.images[img.ID] = img
	}
	for _, l := range snap.Likes {
		s.likes[likeKey(l.ImageID, l.UserID)] = l
	}
	s.comments = snap.Comments
	return nil
}

// save must be called with s.mu held for writing.
func (s *MemoryStore) save() error {
	if s.filePath == "" {
		return nil
	}
	snap := snapshot{
		Actors:   make([]Actor, 0, len(s.actors)),
		Images:   make([]Image, 0, len(s.images)),
		Likes:    make([]like, 0, len(s.likes)),
		Comments: s.comments,
	}
	for _, a := range s.actors {
		snap.Actors = append(snap.Actors, a)
	}
	for _, img := range s.images {
		snap.Images = append(snap.Images, img)
	}
	for _, l := range s.likes {
		snap.Likes = append(snap.Likes, l)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.filePath)
}
