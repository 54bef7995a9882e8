package domain

import (
	"net/url"
	"strconv"
)

// ArchivedScope controls whether archived items are part of a feed
type ArchivedScope string

const (
	ArchivedExclude ArchivedScope = "exclude"
	ArchivedInclude ArchivedScope = "include"
	ArchivedOnly    ArchivedScope = "only"
)

// FeedClientOptions are the query options a feed is initialized with.
// Zero values mean "not set" and are left out of the request.
type FeedClientOptions struct {
	Before   string        `json:"before,omitempty" mapstructure:"before" validate:"omitempty"`
	After    string        `json:"after,omitempty" mapstructure:"after" validate:"omitempty"`
	PageSize int           `json:"page_size,omitempty" mapstructure:"page_size" validate:"omitempty,min=1,max=50"`
	Status   string        `json:"status,omitempty" mapstructure:"status" validate:"omitempty,oneof=unread unseen read all"`
	Source   string        `json:"source,omitempty" mapstructure:"source" validate:"omitempty,max=255"`
	Tenant   string        `json:"tenant,omitempty" mapstructure:"tenant" validate:"omitempty,max=255"`
	Archived ArchivedScope `json:"archived,omitempty" mapstructure:"archived" validate:"omitempty,oneof=exclude include only"`
}

// DefaultFeedClientOptions are applied under any caller supplied options
func DefaultFeedClientOptions() FeedClientOptions {
	return FeedClientOptions{Archived: ArchivedExclude}
}

// Merge returns o with every non-zero field of override applied on top
func (o FeedClientOptions) Merge(override FeedClientOptions) FeedClientOptions {
	out := o
	if override.Before != "" {
		out.Before = override.Before
	}
	if override.After != "" {
		out.After = override.After
	}
	if override.PageSize != 0 {
		out.PageSize = override.PageSize
	}
	if override.Status != "" {
		out.Status = override.Status
	}
	if override.Source != "" {
		out.Source = override.Source
	}
	if override.Tenant != "" {
		out.Tenant = override.Tenant
	}
	if override.Archived != "" {
		out.Archived = override.Archived
	}
	return out
}

// QueryParams encodes the options as feed endpoint query parameters
func (o FeedClientOptions) QueryParams() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("before", o.Before)
	set("after", o.After)
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	set("status", o.Status)
	set("source", o.Source)
	set("tenant", o.Tenant)
	set("archived", string(o.Archived))
	return q
}
