package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings for an S3-compatible bucket.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PublicBase string // browser-accessible base URL, e.g. "http://localhost:9000/products"
}

// MinioStore implements Store on a MinIO (or any S3-compatible) bucket.
// Object keys are the content-addressed asset names.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioStore creates a MinIO client, ensures the bucket exists with a public-read
// policy, and returns a ready-to-use MinioStore.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		log.Printf("storage: created bucket %q", cfg.Bucket)
	}

	if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
	}, nil
}

// Write uploads data unless an object with the same content-addressed key exists.
func (s *MinioStore) Write(ctx context.Context, data []byte, ext string) (Stored, error) {
	stored := Stored{
		Name:        NameFor(data, ext),
		Fingerprint: Fingerprint(data),
		Extension:   strings.ToLower(ext),
	}
	if err := CheckName(stored.Name); err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	exists, err := s.Exists(ctx, stored.Name)
	if err != nil {
		return Stored{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if exists {
		return stored, nil
	}

	_, err = s.client.PutObject(ctx, s.bucket, stored.Name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(stored.Extension),
	})
	if err != nil {
		return Stored{}, fmt.Errorf("%w: put object %q: %w", ErrWriteFailed, stored.Name, err)
	}

	stored.Created = true
	return stored, nil
}

// Remove deletes the object. S3 treats removal of a missing key as success.
func (s *MinioStore) Remove(ctx context.Context, name string) error {
	if err := CheckName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: remove object %q: %w", ErrDeleteFailed, name, err)
	}
	return nil
}

// Exists stats the object.
func (s *MinioStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := CheckName(name); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("stat object %q: %w", name, err)
}

// Locator returns the public bucket URL for name. Without a configured public
// base it falls back to <scheme>://<host>/<bucket>/<name> of the serving origin,
// or to the root-relative /<bucket>/<name> when the origin has no host.
// For local MinIO: "http://localhost:9000/products/<sha256>.png"
func (s *MinioStore) Locator(name string, origin Origin) string {
	if s.publicBase != "" {
		return joinURL(s.publicBase, name)
	}
	path := "/" + s.bucket + "/" + name
	if origin.Host == "" {
		return path
	}
	scheme := origin.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + origin.Host + path
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
