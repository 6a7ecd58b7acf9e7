// Package gcs stores receipt images in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"moneybook/internal/blob"
	"moneybook/internal/gcloud"
	"moneybook/internal/ports"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"
)

const objectPrefix = "images/"

// Store is a BlobStore backed by the Cloud Storage JSON API.
type Store struct {
	svc    *gstorage.Service
	bucket string
}

var _ ports.BlobStore = (*Store)(nil)

// New builds a store for bucket using the given client options.
func New(ctx context.Context, bucket string, opts ...goption.ClientOption) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("missing GCS_BUCKET")
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &Store{svc: svc, bucket: bucket}, nil
}

// NewFromEnv authenticates with the same service account variables as the
// Sheets exporter.
func NewFromEnv(ctx context.Context, bucket string) (*Store, error) {
	creds, err := gcloud.CredentialsJSONFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, bucket,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gstorage.DevstorageReadWriteScope))
}

func objectName(key string) (string, error) {
	if !blob.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", blob.ErrInvalidKey, key)
	}
	return objectPrefix + key, nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	obj := &gstorage.Object{Name: name, ContentType: contentType}
	_, err = s.svc.Objects.Insert(s.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", name, s.bucket, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectName(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Objects.Get(s.bucket, name).Context(ctx).Download()
	if isNotFound(err) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	return resp.Body, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	err = s.svc.Objects.Delete(s.bucket, name).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return "https://storage.googleapis.com/" + s.bucket + "/" + objectPrefix + key
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
