package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"custody/internal/domain"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const documentIDMetadataKey = "document-id"

// S3Store keeps blobs as objects under a key prefix in one bucket.
type S3Store struct {
	client s3iface.S3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Store(client s3iface.S3API, bucket, prefix string) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" && (path.Clean(prefix) != prefix || strings.HasPrefix(prefix, "..") || strings.Contains(prefix, "/../")) {
		return nil, fmt.Errorf("invalid s3 prefix %q", prefix)
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, now: time.Now}, nil
}

// Store writes ciphertext under a fresh locator. hint, the owning document id,
// is kept as object metadata so an orphaned object can be traced back.
func (s *S3Store) Store(ctx context.Context, ciphertext []byte, hint string) (string, error) {
	if len(ciphertext) == 0 {
		return "", fmt.Errorf("%w: empty blob", domain.ErrStorage)
	}
	locator := NewLocator(s.now())
	key, err := s.key(locator)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(ciphertext),
		ContentLength:        aws.Int64(int64(len(ciphertext))),
		ContentType:          aws.String("application/octet-stream"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	}
	if hint != "" {
		input.Metadata = map[string]*string{documentIDMetadataKey: aws.String(hint)}
	}
	_, err = s.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return "", classifyS3Error(ctx, err)
	}
	return locator, nil
}

func (s *S3Store) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	key, err := s.key(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(ctx, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read object: %v", domain.ErrStorage, err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := s.head(ctx, locator)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an object. S3 deletes are idempotent, so existence is checked
// first to report whether anything was removed.
func (s *S3Store) Delete(ctx context.Context, locator string) (bool, error) {
	exists, err := s.Exists(ctx, locator)
	if err != nil || !exists {
		return false, err
	}
	key, err := s.key(locator)
	if err != nil {
		return false, err
	}
	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, classifyS3Error(ctx, err)
	}
	return true, nil
}

func (s *S3Store) Size(ctx context.Context, locator string) (int64, error) {
	out, err := s.head(ctx, locator)
	if err != nil {
		return 0, err
	}
	return aws.Int64Value(out.ContentLength), nil
}

func (s *S3Store) head(ctx context.Context, locator string) (*s3.HeadObjectOutput, error) {
	key, err := s.key(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(ctx, err)
	}
	return out, nil
}

// key maps a locator to an object key and verifies it stays under the prefix.
func (s *S3Store) key(locator string) (string, error) {
	cleaned, err := CleanLocator(locator)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	key := path.Join(s.prefix, cleaned)
	if !strings.HasPrefix(key, s.prefix+"/") {
		return "", fmt.Errorf("%w: locator escapes key prefix", domain.ErrStorage)
	}
	return key, nil
}

// classifyS3Error separates missing objects from every other failure. Context
// errors surface as themselves since the SDK sometimes wraps them.
func classifyS3Error(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return domain.ErrBlobNotFound
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound", "NoSuchVersion":
			return domain.ErrBlobNotFound
		case request.CanceledErrorCode:
			return context.Canceled
		}
		return fmt.Errorf("%w: s3 %s", domain.ErrStorage, aerr.Code())
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
