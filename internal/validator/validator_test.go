package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/amiyamandal-dev/feedsync/internal/domain"
)

func TestValidateFeedClientOptions(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		opts    domain.FeedClientOptions
		wantErr string
	}{
		{name: "zero value", opts: domain.FeedClientOptions{}},
		{name: "defaults", opts: domain.DefaultFeedClientOptions()},
		{
			name: "all fields",
			opts: domain.FeedClientOptions{PageSize: 25, Status: "unread", Source: "welcome", Tenant: "acme", Archived: domain.ArchivedInclude},
		},
		{name: "page size too large", opts: domain.FeedClientOptions{PageSize: 51}, wantErr: "PageSize must be at most 50"},
		{name: "negative page size", opts: domain.FeedClientOptions{PageSize: -1}, wantErr: "PageSize must be at least 1"},
		{name: "bad status", opts: domain.FeedClientOptions{Status: "pending"}, wantErr: "Status must be one of"},
		{name: "bad archived scope", opts: domain.FeedClientOptions{Archived: "never"}, wantErr: "Archived must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.opts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, domain.ErrValidationFailed) {
				t.Errorf("expected ErrValidationFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
