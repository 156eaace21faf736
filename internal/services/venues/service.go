// Package venues serves the directory listings with a read-through
// cache in front of the store.
package venues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nitemap/nitemap/internal/cache"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/storage"
)

// listTTL bounds how stale a cached listing may get. Listings change
// rarely and admin writes invalidate eagerly, so this is a backstop.
const listTTL = 5 * time.Minute

// Service reads and writes directory venues.
type Service struct {
	store storage.VenueStore
	cache *cache.Cache
	log   *logging.Logger
}

// New creates the venues service. The cache may be nil.
func New(store storage.VenueStore, c *cache.Cache, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{store: store, cache: c, log: log.WithComponent("venues")}
}

// List returns venues matching the filter, reading through the cache.
func (s *Service) List(ctx context.Context, filter venue.Filter) ([]venue.Venue, error) {
	if filter.Category != "" && !validCategory(filter.Category) {
		return nil, svcerr.Validation("unknown venue category")
	}

	key := listKey(filter)
	var cached []venue.Venue
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.WithError(err).Warnf("cache read for %s", key)
	}

	venues, err := s.store.ListVenues(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, venues, listTTL)
	return venues, nil
}

// Get returns one venue.
func (s *Service) Get(ctx context.Context, id string) (venue.Venue, error) {
	return s.store.GetVenue(ctx, id)
}

// Create adds a venue and drops cached listings.
func (s *Service) Create(ctx context.Context, v venue.Venue) (venue.Venue, error) {
	if err := validate(v); err != nil {
		return venue.Venue{}, err
	}
	created, err := s.store.CreateVenue(ctx, v)
	if err != nil {
		return venue.Venue{}, err
	}
	s.invalidateListings(ctx)
	return created, nil
}

// Update edits a venue and drops cached listings.
func (s *Service) Update(ctx context.Context, v venue.Venue) (venue.Venue, error) {
	if err := validate(v); err != nil {
		return venue.Venue{}, err
	}
	updated, err := s.store.UpdateVenue(ctx, v)
	if err != nil {
		return venue.Venue{}, err
	}
	s.invalidateListings(ctx)
	return updated, nil
}

// Delete removes a venue and drops cached listings.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteVenue(ctx, id); err != nil {
		return err
	}
	s.invalidateListings(ctx)
	return nil
}

// invalidateListings drops the unfiltered listing key. Filtered keys
// age out within listTTL, which is acceptable for directory browsing.
func (s *Service) invalidateListings(ctx context.Context) {
	s.cache.Invalidate(ctx, listKey(venue.Filter{}))
}

func listKey(filter venue.Filter) string {
	return fmt.Sprintf("venues:list:%s:%s:%s",
		filter.Category, filter.Region, strings.ToLower(filter.Query))
}

func validate(v venue.Venue) error {
	if strings.TrimSpace(v.Name) == "" {
		return svcerr.Validation("venue name is required")
	}
	if strings.TrimSpace(v.Region) == "" {
		return svcerr.Validation("venue region is required")
	}
	if !validCategory(v.Category) {
		return svcerr.Validation("unknown venue category")
	}
	return nil
}

func validCategory(c venue.Category) bool {
	switch c {
	case venue.CategoryBar, venue.CategoryClub, venue.CategoryLounge,
		venue.CategoryRestaurant, venue.CategoryCafe:
		return true
	}
	return false
}
