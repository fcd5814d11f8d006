package audit

import (
	"context"
	"fmt"
)

// RepositoryPort defines the timeline query used by the service.
type RepositoryPort interface {
	Timeline(ctx context.Context, f Filters) ([]Entry, error)
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Result bundles a timeline page with its paging metadata.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// TimelineQuery is the caller-facing filter set.
type TimelineQuery struct {
	Filters
	Page     int
	PageSize int
}

// Timeline fetches one page of the audit trail. Page sizes are clamped to
// keep queries bounded; one extra row is read to detect a next page.
func (s *Service) Timeline(ctx context.Context, q TimelineQuery) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	filters := q.Filters
	filters.Offset = (page - 1) * pageSize
	filters.Limit = pageSize + 1

	entries, err := s.repo.Timeline(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	return Result{
		Entries: entries,
		Paging:  PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}
