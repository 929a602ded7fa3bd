package gallery

import "time"

const (
	AnonymousHandle = "anonymous@example.com"
	AnonymousName   = "Anonymous"
)

// Actor is the party a write is attributed to.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Image is immutable once created.
type Image struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mimeType"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ImageSummary is an Image with counts derived at read time.
type ImageSummary struct {
	Image
	LikeCount    int    `json:"likeCount"`
	CommentCount int    `json:"commentCount"`
	UserName     string `json:"userName"`
}

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ImageID   string    `json:"imageId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	// UserName is resolved from the actor when read, never stored.
	UserName string `json:"userName"`
}

// ToggleAction tells which transition a like toggle performed.
type ToggleAction string

const (
	Liked   ToggleAction = "liked"
	Unliked ToggleAction = "unliked"
)

type ToggleResult struct {
	Action    ToggleAction `json:"action"`
	LikeCount int          `json:"likeCount"`
}
