package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore persists artifacts into a Supabase storage bucket and hands
// back the public object URL.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

func NewSupabaseStore(url, serviceKey, bucket string) (*SupabaseStore, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: supabase bucket is required")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	opts := storage_go.FileOptions{}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, cleanKey, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("storage: upload to supabase: %w", err)
	}
	resp := s.client.Storage.GetPublicUrl(s.bucket, cleanKey)
	if resp.SignedURL == "" {
		return "", errors.New("storage: supabase returned empty public url")
	}
	return resp.SignedURL, nil
}

var _ ObjectStore = (*SupabaseStore)(nil)
