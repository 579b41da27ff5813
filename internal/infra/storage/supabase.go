// Package storage uploads call recordings to Supabase Storage.
package storage

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// DefaultBucket receives recordings when no bucket is configured.
const DefaultBucket = "voice-recording"

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseStorage implements usecase.Storage on a Supabase bucket.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStorage constructs a new Supabase storage client.
func NewSupabaseStorage(cfg Config) (*SupabaseStorage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &SupabaseStorage{client: client, bucket: bucket}, nil
}

func (s *SupabaseStorage) Bucket() string { return s.bucket }

// Upload stores body under objectKey. The bucket's defaults decide the
// served content type.
func (s *SupabaseStorage) Upload(objectKey string, contentType string, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("refusing to upload empty %s object %s", contentType, objectKey)
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, objectKey, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
