package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjectAPI struct {
	puts    map[string][]byte
	types   map[string]string
	deleted []string
	failPut error
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestR2StorePut(t *testing.T) {
	api := &fakeObjectAPI{puts: map[string][]byte{}, types: map[string]string{}}
	store := newR2Store(api, "gallery", "https://cdn.example.com/")

	url, err := store.Put(context.Background(), "k.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/k.jpg" {
		t.Fatalf("url = %q", url)
	}
	if string(api.puts["k.jpg"]) != "jpeg" {
		t.Fatalf("stored body = %q", api.puts["k.jpg"])
	}
	if api.types["k.jpg"] != "image/jpeg" {
		t.Fatalf("content type = %q", api.types["k.jpg"])
	}

	if err := store.Delete(context.Background(), "k.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "k.jpg" {
		t.Fatalf("deleted = %#v", api.deleted)
	}
}

func TestR2StorePutError(t *testing.T) {
	api := &fakeObjectAPI{failPut: errors.New("access denied")}
	store := newR2Store(api, "gallery", "https://cdn.example.com")
	if _, err := store.Put(context.Background(), "k.jpg", []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewR2StoreRequiresSettings(t *testing.T) {
	_, err := NewR2Store(context.Background(), R2Options{Endpoint: "https://acct.r2.cloudflarestorage.com", Bucket: "b"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	_, err = NewR2Store(context.Background(), R2Options{
		Endpoint: "https://acct.r2.cloudflarestorage.com", Bucket: "b",
		AccessKeyID: "id", AccessKeySecret: "secret",
	})
	if err == nil {
		t.Fatal("expected error without public base url")
	}
}
