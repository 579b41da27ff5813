package storage

import "testing"

func TestNewSupabaseStorage_RequiresConfig(t *testing.T) {
	if _, err := NewSupabaseStorage(Config{URL: "https://x.supabase.co"}); err == nil {
		t.Fatalf("expected error without service role key")
	}
	if _, err := NewSupabaseStorage(Config{ServiceRoleKey: "key"}); err == nil {
		t.Fatalf("expected error without url")
	}
}

func TestNewSupabaseStorage_DefaultBucket(t *testing.T) {
	s, err := NewSupabaseStorage(Config{URL: "https://x.supabase.co", ServiceRoleKey: "key"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Bucket() != DefaultBucket {
		t.Fatalf("expected default bucket, got %s", s.Bucket())
	}
	if err := s.Upload("a.wav", "audio/wav", nil); err == nil {
		t.Fatalf("expected empty body rejected")
	}
}
