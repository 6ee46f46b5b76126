package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"custody/internal/domain"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	failGet  error
	keys     []string
	metadata map[string]map[string]*string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, metadata: map[string]map[string]*string{}}
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = data
	f.keys = append(f.keys, aws.StringValue(in.Key))
	f.metadata[aws.StringValue(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), 404, "req-1")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store, err := NewS3Store(client, "vault-bucket", "/blobs/")
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	locator, err := store.Store(ctx, []byte("sealed"), "doc-1")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(client.keys) != 1 || client.keys[0] != "blobs/"+locator {
		t.Fatalf("expected object under prefix, got %v", client.keys)
	}
	if strings.Contains(locator, "doc-1") {
		t.Fatalf("hint must not reach the locator, got %q", locator)
	}
	if got := aws.StringValue(client.metadata["blobs/"+locator][documentIDMetadataKey]); got != "doc-1" {
		t.Fatalf("expected document id metadata, got %q", got)
	}
	got, err := store.Retrieve(ctx, locator)
	if err != nil || string(got) != "sealed" {
		t.Fatalf("retrieve: %q %v", got, err)
	}
	size, err := store.Size(ctx, locator)
	if err != nil || size != 6 {
		t.Fatalf("size: %d %v", size, err)
	}
	deleted, err := store.Delete(ctx, locator)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	exists, err := store.Exists(ctx, locator)
	if err != nil || exists {
		t.Fatalf("expected object gone, got %v %v", exists, err)
	}
	deleted, err = store.Delete(ctx, locator)
	if err != nil || deleted {
		t.Fatalf("second delete should report false, got %v %v", deleted, err)
	}
}

func TestS3Store_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store, err := NewS3Store(client, "vault-bucket", "")
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	locator := NewLocator(store.now())
	if _, err := store.Retrieve(ctx, locator); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected blob not found, got %v", err)
	}
	if _, err := store.Size(ctx, locator); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected blob not found from head, got %v", err)
	}
	client.failGet = awserr.New("InternalError", "boom", nil)
	_, err = store.Retrieve(ctx, locator)
	if !errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected transient storage error, got %v", err)
	}
	if strings.Contains(err.Error(), "boom") {
		t.Fatal("backend message should not be surfaced")
	}
}

func TestS3Store_RejectsBadLocators(t *testing.T) {
	store, err := NewS3Store(newFakeS3(), "vault-bucket", "blobs")
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	for _, locator := range []string{"../other/key.enc", "/abs.enc", "2026/01/01/../../x.enc"} {
		if _, err := store.Retrieve(context.Background(), locator); !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("locator %q: expected storage error, got %v", locator, err)
		}
	}
	if _, err := NewS3Store(newFakeS3(), "vault-bucket", "../escape"); err == nil {
		t.Fatal("expected prefix validation error")
	}
}
