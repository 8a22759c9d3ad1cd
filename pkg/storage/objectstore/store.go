// Package objectstore keeps audio blobs in an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

const (
	objectPrefix = "audio/"
	metaFileName = "File-Name"
	pingTimeout  = 5 * time.Second

	// smallest part S3 accepts; unknown-length uploads buffer one part at a time
	uploadPartSize = 5 << 20
)

type Store struct {
	client *minio.Client
	bucket string
	logg   *logger.Logger
}

var _ storage.Store = (*Store)(nil)
var _ storage.Lister = (*Store)(nil)

// New connects to the bucket described by cfg and creates it when missing.
func New(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	s := &Store{client: client, bucket: cfg.Bucket, logg: logg}
	if err := s.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "object store ready")
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func objectKey(id uuid.UUID) string {
	return objectPrefix + id.String()
}

func (s *Store) Put(ctx context.Context, r io.Reader, contentType, name string) (uuid.UUID, error) {
	if r == nil {
		return uuid.Nil, errors.New("blob reader is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := uuid.New()
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(id), r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{metaFileName: name},
		PartSize:     uploadPartSize,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("put object: %w", err)
	}
	return id, nil
}

func (s *Store) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, mapErr(err)
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, mapErr(err)
	}
	info := &storage.BlobInfo{
		ID:          id,
		ContentType: st.ContentType,
		FileName:    st.UserMetadata[metaFileName],
		Length:      st.Size,
		CreatedAt:   st.LastModified,
	}
	return obj, info, nil
}

// Delete removes objects in one batch request. Missing keys are not errors.
func (s *Store) Delete(ctx context.Context, ids ...uuid.UUID) error {
	ids = storage.Compact(ids)
	if len(ids) == 0 {
		return nil
	}
	objects := make(chan minio.ObjectInfo, len(ids))
	for _, id := range ids {
		objects <- minio.ObjectInfo{Key: objectKey(id)}
	}
	close(objects)

	var failed []string
	for res := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err == nil || isNoSuchKey(res.Err) {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %v", res.ObjectName, res.Err))
	}
	if len(failed) > 0 {
		return fmt.Errorf("remove objects: %s", strings.Join(failed, "; "))
	}
	return nil
}

func (s *Store) ListCreatedBefore(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := minio.ListObjectsOptions{Prefix: objectPrefix, Recursive: true}
	if after != uuid.Nil {
		opts.StartAfter = objectKey(after)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ids := make([]uuid.UUID, 0, limit)
	for obj := range s.client.ListObjects(listCtx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		id, err := uuid.Parse(strings.TrimPrefix(obj.Key, objectPrefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping bucket: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func mapErr(err error) error {
	if isNoSuchKey(err) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("get object: %w", err)
}
