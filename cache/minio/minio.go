// Package minio provides a cache.Store backed by MinIO or any S3-compatible
// object storage, so a fleet of instances can share built artifacts.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/vecglobe/vecglobe/cache"
)

// Store keeps one object per fingerprint under a configurable key prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ cache.Store = (*Store)(nil)

// NewStore creates a MinIO-backed store.
// bucket is the bucket name, rootPrefix is prepended to all keys
// (e.g. "vecglobe/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(fingerprint uint64) string {
	return path.Join(s.prefix, fmt.Sprintf("%016x.artifact", fingerprint))
}

func (s *Store) Load(ctx context.Context, fingerprint uint64) (cache.Entry, error) {
	key := s.key(fingerprint)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return cache.Entry{}, cache.ErrNotFound
		}
		return cache.Entry{}, fmt.Errorf("stat cache object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return cache.Entry{}, fmt.Errorf("get cache object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("read cache object: %w", err)
	}

	return cache.Entry{
		Fingerprint: fingerprint,
		Bytes:       data,
		CreatedAt:   info.LastModified,
	}, nil
}

func (s *Store) Save(ctx context.Context, fingerprint uint64, data []byte) error {
	key := s.key(fingerprint)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put cache object: %w", err)
	}

	return nil
}

func (s *Store) Clear(ctx context.Context, fingerprint uint64) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(fingerprint), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("remove cache object: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
