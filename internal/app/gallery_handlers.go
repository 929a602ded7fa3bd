package app

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/apperr"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/gallery"
)

const (
	// maxUploadRequestBytes leaves room for multipart framing around a
	// file at the size limit.
	maxUploadRequestBytes = gallery.MaxUploadBytes + 1<<20
	maxCommentBodyBytes   = 64 << 10
	uploadField           = "image"
)

type uploadResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

type likeResponse struct {
	LikeCount int                  `json:"likeCount"`
	Action    gallery.ToggleAction `json:"action"`
}

type commentRequest struct {
	Content string `json:"content"`
}

func (a *App) handleUploadShort(w http.ResponseWriter, r *http.Request) {
	img, err := a.upload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		ID:        img.ID,
		Title:     img.Title,
		URL:       img.URL,
		CreatedAt: img.CreatedAt,
	})
}

func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	img, err := a.upload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) (gallery.Image, error) {
	in, err := readUpload(w, r)
	if err != nil {
		return gallery.Image{}, err
	}
	actor, err := a.gallery.ResolveAnonymousActor(r.Context())
	if err != nil {
		return gallery.Image{}, err
	}
	return a.gallery.StoreUpload(r.Context(), actor, in)
}

func readUpload(w http.ResponseWriter, r *http.Request) (gallery.UploadInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequestBytes)
	if err := r.ParseMultipartForm(maxUploadRequestBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return gallery.UploadInput{}, apperr.Validation("File too large. Maximum size is 5MB.")
		}
		return gallery.UploadInput{}, apperr.Validation("No file provided")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return gallery.UploadInput{}, apperr.Validation("No file provided")
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, gallery.MaxUploadBytes+1))
	if err != nil {
		return gallery.UploadInput{}, apperr.Internal("read upload", err)
	}

	return gallery.UploadInput{
		Data:         data,
		OriginalName: header.Filename,
		MimeType:     mediaType(header.Header.Get("Content-Type"), data),
	}, nil
}

// mediaType prefers the declared part type and sniffs the content otherwise.
func mediaType(declared string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
		return declared
	}
	if len(data) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func (a *App) handleListImages(w http.ResponseWriter, r *http.Request) {
	items, err := a.gallery.ListImages(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	actor, err := a.gallery.ResolveAnonymousActor(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.gallery.ToggleLike(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{LikeCount: res.LikeCount, Action: res.Action})
}

func (a *App) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	body := http.MaxBytesReader(w, r.Body, maxCommentBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, r, apperr.Validation("Invalid request body"))
		return
	}

	actor, err := a.gallery.ResolveAnonymousActor(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.gallery.AddComment(r.Context(), chi.URLParam(r, "id"), actor, req.Content)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *App) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := a.gallery.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
