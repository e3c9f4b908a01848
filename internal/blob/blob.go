// Package blob stores complaint images and hands back their public URLs.
package blob

import (
	"bytes"
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/config"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store accepts image bytes and returns a durable public URL.
type Store interface {
	Upload(ctx context.Context, data []byte, contentTypeHint string) (string, error)
}

// ValidateImage sniffs data and returns its content type. Only image/* up to
// config.MaxImageBytes is accepted. A non-image hint is rejected even when
// the bytes look like an image.
func ValidateImage(data []byte, contentTypeHint string) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("image is empty")
	}
	if len(data) > config.MaxImageBytes {
		return "", apperr.Validation("image exceeds %d MiB", config.MaxImageBytes>>20)
	}
	if contentTypeHint != "" && !strings.HasPrefix(contentTypeHint, config.ImageContentPrefix) {
		return "", apperr.Validation("unsupported content type %q", contentTypeHint)
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), config.ImageContentPrefix) {
		return "", apperr.Validation("file is not an image (%s)", detected.String())
	}
	return detected.String(), nil
}

// ObjectPutter is the part of *minio.Client the store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioStore struct {
	client    ObjectPutter
	bucket    string
	publicURL string
}

func NewMinioStore(client ObjectPutter, bucket, publicURL string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, publicURL: publicURL}
}

// NewMinioClient connects to MinIO and makes sure the bucket exists with a
// public read-only policy.
func NewMinioClient(ctx context.Context, cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, err
		}
	}
	return client, nil
}

func publicReadPolicy(bucket string) string {
	return `{
		"Version": "2012-10-17",
		"Statement": [
			{
				"Action": ["s3:GetObject"],
				"Effect": "Allow",
				"Principal": "*",
				"Resource": "arn:aws:s3:::` + bucket + `/*"
			}
		]
	}`
}

func (s *MinioStore) Upload(ctx context.Context, data []byte, contentTypeHint string) (string, error) {
	contentType, err := ValidateImage(data, contentTypeHint)
	if err != nil {
		return "", err
	}

	objectKey := config.ImageObjectPrefix + uuid.New().String() + mimetype.Detect(data).Extension()
	_, err = s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperr.Upstream("image upload failed", err)
	}

	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.publicURL, "/"), s.bucket, objectKey), nil
}

// Disabled rejects every upload. It is used when no object store is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, []byte, string) (string, error) {
	return "", apperr.Upstream("image upload failed", fmt.Errorf("object storage is not configured"))
}

// File is one image picked by the caller.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult reports a batch upload. URLs holds the successful uploads in
// input order; Failures maps file names to the reason they were dropped.
// A repeated name gets a " (2)", " (3)" suffix.
type UploadResult struct {
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	URLs      []string          `json:"urls"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Partial reports whether some but not all files were stored.
func (r UploadResult) Partial() bool { return r.Succeeded < r.Attempted }

// UploadAll uploads files one after another. A failing file is skipped;
// the batch itself never fails.
func UploadAll(ctx context.Context, store Store, files []File) UploadResult {
	res := UploadResult{Attempted: len(files), URLs: make([]string, 0, len(files))}
	for i, f := range files {
		url, err := store.Upload(ctx, f.Data, f.ContentType)
		if err != nil {
			if res.Failures == nil {
				res.Failures = make(map[string]string)
			}
			name := f.Name
			if name == "" {
				name = fmt.Sprintf("file-%d", i+1)
			}
			base := name
			for n := 2; res.Failures[name] != ""; n++ {
				name = fmt.Sprintf("%s (%d)", base, n)
			}
			res.Failures[name] = apperr.PublicMessage(err)
			continue
		}
		res.URLs = append(res.URLs, url)
		res.Succeeded++
	}
	return res
}
