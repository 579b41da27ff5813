package order

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig identifies the project and table receiving orders.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
}

// Supabase inserts orders as rows of a PostgREST table.
type Supabase struct {
	client *supabase.Client
	table  string
}

func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "orders"
	}
	return &Supabase{client: client, table: table}, nil
}

// Submit inserts the order. The client does not take a context, so ctx
// is only checked before the request is sent.
func (s *Supabase) Submit(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := s.client.From(s.table).Insert(o, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert order into Supabase: %w", err)
	}
	return nil
}
