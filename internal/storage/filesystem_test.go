package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePutAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "uploads/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	url, err := store.Put(context.Background(), "abc.png", []byte{0x89, 0x50}, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/uploads/abc.png" {
		t.Fatalf("url = %q, want /uploads/abc.png", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "abc.png"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("stored %d bytes, want 2", len(data))
	}

	if err := store.Delete(context.Background(), "abc.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "abc.png")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err = %v", err)
	}
	if err := store.Delete(context.Background(), "abc.png"); err != nil {
		t.Fatalf("Delete of missing file: %v", err)
	}
}

func TestFileStoreRejectsCanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.gif", []byte("GIF89a"), "image/gif"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a.png", want: "a.png"},
		{in: "/nested/b.png", want: "nested/b.png"},
		{in: `dir\c.jpg`, want: "dir/c.jpg"},
		{in: "./d.gif", want: "d.gif"},
		{in: "../escape.png", wantErr: true},
		{in: "x/../../escape.png", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "..", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := sanitizeKey(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
