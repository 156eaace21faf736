// Package notices manages admin announcements.
package notices

import (
	"context"
	"strings"

	"github.com/nitemap/nitemap/internal/domain/notice"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/storage"
)

// Service reads and writes announcements.
type Service struct {
	store storage.NoticeStore
}

// New creates the notices service.
func New(store storage.NoticeStore) *Service {
	return &Service{store: store}
}

// List returns announcements, pinned first then newest first.
func (s *Service) List(ctx context.Context) ([]notice.Notice, error) {
	return s.store.ListNotices(ctx)
}

// Get returns one announcement.
func (s *Service) Get(ctx context.Context, id string) (notice.Notice, error) {
	return s.store.GetNotice(ctx, id)
}

// Create publishes an announcement.
func (s *Service) Create(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	if err := validate(n); err != nil {
		return notice.Notice{}, err
	}
	return s.store.CreateNotice(ctx, n)
}

// Update edits an announcement.
func (s *Service) Update(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	if err := validate(n); err != nil {
		return notice.Notice{}, err
	}
	return s.store.UpdateNotice(ctx, n)
}

// Delete removes an announcement.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteNotice(ctx, id)
}

func validate(n notice.Notice) error {
	if strings.TrimSpace(n.Title) == "" {
		return svcerr.Validation("notice title is required")
	}
	if strings.TrimSpace(n.Content) == "" {
		return svcerr.Validation("notice content is required")
	}
	return nil
}
