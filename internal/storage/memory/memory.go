// Package memory provides a thread-safe in-memory persistence layer
// implementing the storage interfaces. It is intended for tests and
// prototyping and deliberately keeps the implementation simple.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/storage"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
	venues   map[string]venue.Venue
	posts    map[string]board.Post
	comments map[string]board.Comment
	coupons  map[string]coupon.Coupon
	items    map[string]coupon.ShopItem
	notices  map[string]notice.Notice
	entries  []ledger.Entry
}

var (
	_ storage.ProfileStore = (*Store)(nil)
	_ storage.PointsStore  = (*Store)(nil)
	_ storage.VenueStore   = (*Store)(nil)
	_ storage.PostStore    = (*Store)(nil)
	_ storage.CommentStore = (*Store)(nil)
	_ storage.CouponStore  = (*Store)(nil)
	_ storage.ShopStore    = (*Store)(nil)
	_ storage.NoticeStore  = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		profiles: make(map[string]profile.Profile),
		venues:   make(map[string]venue.Venue),
		posts:    make(map[string]board.Post),
		comments: make(map[string]board.Comment),
		coupons:  make(map[string]coupon.Coupon),
		items:    make(map[string]coupon.ShopItem),
		notices:  make(map[string]notice.Notice),
	}
}

// ProfileStore implementation ------------------------------------------------

func (m *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := m.profiles[p.ID]; exists {
		return profile.Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}
	if p.Role == "" {
		p.Role = profile.RoleUser
	}
	if p.Level == 0 {
		p.Level = 1
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	m.profiles[p.ID] = p
	return p, nil
}

func (m *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return profile.Profile{}, svcerr.NotFound("profile", id)
	}
	return p, nil
}

func (m *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.profiles[p.ID]
	if !ok {
		return profile.Profile{}, svcerr.NotFound("profile", p.ID)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.profiles[p.ID] = p
	return p, nil
}

// PointsStore implementation -------------------------------------------------

func (m *Store) Credit(_ context.Context, profileID string, incrementReview bool, entry ledger.Entry) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[profileID]
	if !ok {
		return profile.Profile{}, svcerr.NotFound("profile", profileID)
	}
	if entry.Amount <= 0 {
		return profile.Profile{}, svcerr.Validation("credit amount must be positive")
	}

	p.Points += entry.Amount
	if incrementReview {
		p.ReviewCount++
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[profileID] = p
	m.appendEntryLocked(profileID, entry)
	return p, nil
}

func (m *Store) DebitIfSufficient(_ context.Context, profileID string, entry ledger.Entry) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[profileID]
	if !ok {
		return profile.Profile{}, svcerr.NotFound("profile", profileID)
	}
	if entry.Amount >= 0 {
		return profile.Profile{}, svcerr.Validation("debit amount must be negative")
	}
	price := -entry.Amount
	if p.Points < price {
		return profile.Profile{}, svcerr.InsufficientPoints(p.Points, price)
	}

	p.Points -= price
	p.UpdatedAt = time.Now().UTC()
	m.profiles[profileID] = p
	m.appendEntryLocked(profileID, entry)
	return p, nil
}

func (m *Store) UpdateLevel(_ context.Context, profileID string, level int) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[profileID]
	if !ok {
		return profile.Profile{}, svcerr.NotFound("profile", profileID)
	}
	p.Level = level
	p.UpdatedAt = time.Now().UTC()
	m.profiles[profileID] = p
	return p, nil
}

func (m *Store) ListLedger(_ context.Context, profileID string) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if e.ProfileID == profileID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) appendEntryLocked(profileID string, entry ledger.Entry) {
	entry.ProfileID = profileID
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
}

// VenueStore implementation --------------------------------------------------

func (m *Store) CreateVenue(_ context.Context, v venue.Venue) (venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	m.venues[v.ID] = v
	return v, nil
}

func (m *Store) UpdateVenue(_ context.Context, v venue.Venue) (venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.venues[v.ID]
	if !ok {
		return venue.Venue{}, svcerr.NotFound("venue", v.ID)
	}
	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = time.Now().UTC()
	m.venues[v.ID] = v
	return v, nil
}

func (m *Store) GetVenue(_ context.Context, id string) (venue.Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.venues[id]
	if !ok {
		return venue.Venue{}, svcerr.NotFound("venue", id)
	}
	return v, nil
}

func (m *Store) ListVenues(_ context.Context, filter venue.Filter) ([]venue.Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]venue.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		if filter.Category != "" && v.Category != filter.Category {
			continue
		}
		if filter.Region != "" && v.Region != filter.Region {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(v.Name), strings.ToLower(filter.Query)) {
			continue
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Store) DeleteVenue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.venues[id]; !ok {
		return svcerr.NotFound("venue", id)
	}
	delete(m.venues, id)
	return nil
}

// PostStore implementation ---------------------------------------------------

func (m *Store) CreatePost(_ context.Context, p board.Post) (board.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.posts[p.ID] = p
	return p, nil
}

func (m *Store) UpdatePost(_ context.Context, p board.Post) (board.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.posts[p.ID]
	if !ok {
		return board.Post{}, svcerr.NotFound("post", p.ID)
	}
	p.CreatedAt = original.CreatedAt
	p.AuthorID = original.AuthorID
	p.UpdatedAt = time.Now().UTC()
	m.posts[p.ID] = p
	return p, nil
}

func (m *Store) GetPost(_ context.Context, id string) (board.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return board.Post{}, svcerr.NotFound("post", id)
	}
	return p, nil
}

func (m *Store) ListPosts(_ context.Context, category board.Category) ([]board.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]board.Post, 0, len(m.posts))
	for _, p := range m.posts {
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return svcerr.NotFound("post", id)
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

// CommentStore implementation ------------------------------------------------

func (m *Store) CreateComment(_ context.Context, c board.Comment) (board.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[c.PostID]; !ok {
		return board.Comment{}, svcerr.NotFound("post", c.PostID)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	m.comments[c.ID] = c
	return c, nil
}

func (m *Store) GetComment(_ context.Context, id string) (board.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.comments[id]
	if !ok {
		return board.Comment{}, svcerr.NotFound("comment", id)
	}
	return c, nil
}

func (m *Store) ListComments(_ context.Context, postID string) ([]board.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []board.Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.comments[id]; !ok {
		return svcerr.NotFound("comment", id)
	}
	delete(m.comments, id)
	return nil
}

// CouponStore implementation -------------------------------------------------

func (m *Store) CreateCoupon(_ context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	m.coupons[c.ID] = c
	return c, nil
}

func (m *Store) GetCoupon(_ context.Context, id string) (coupon.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.coupons[id]
	if !ok {
		return coupon.Coupon{}, svcerr.NotFound("coupon", id)
	}
	return c, nil
}

func (m *Store) ListCoupons(_ context.Context, profileID string) ([]coupon.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []coupon.Coupon
	for _, c := range m.coupons {
		if c.ProfileID == profileID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) ConsumeCoupon(_ context.Context, id, serial string, usedAt time.Time) (coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.coupons[id]
	if !ok {
		return coupon.Coupon{}, svcerr.NotFound("coupon", id)
	}
	if c.IsUsed {
		return coupon.Coupon{}, svcerr.Conflict("coupon already used")
	}
	c.IsUsed = true
	c.Serial = serial
	used := usedAt.UTC()
	c.UsedAt = &used
	m.coupons[id] = c
	return c, nil
}

func (m *Store) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.coupons {
		if c.ExpiresAt.Before(cutoff) {
			delete(m.coupons, id)
			removed++
		}
	}
	return removed, nil
}

// ShopStore implementation ---------------------------------------------------

func (m *Store) CreateShopItem(_ context.Context, item coupon.ShopItem) (coupon.ShopItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()
	m.items[item.ID] = item
	return item, nil
}

func (m *Store) GetShopItem(_ context.Context, id string) (coupon.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return coupon.ShopItem{}, svcerr.NotFound("shop item", id)
	}
	return item, nil
}

func (m *Store) ListShopItems(_ context.Context, activeOnly bool) ([]coupon.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]coupon.ShopItem, 0, len(m.items))
	for _, item := range m.items {
		if activeOnly && !item.Active {
			continue
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Price < result[j].Price })
	return result, nil
}

// NoticeStore implementation -------------------------------------------------

func (m *Store) CreateNotice(_ context.Context, n notice.Notice) (notice.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	m.notices[n.ID] = n
	return n, nil
}

func (m *Store) UpdateNotice(_ context.Context, n notice.Notice) (notice.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.notices[n.ID]
	if !ok {
		return notice.Notice{}, svcerr.NotFound("notice", n.ID)
	}
	n.CreatedAt = original.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	m.notices[n.ID] = n
	return n, nil
}

func (m *Store) GetNotice(_ context.Context, id string) (notice.Notice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notices[id]
	if !ok {
		return notice.Notice{}, svcerr.NotFound("notice", id)
	}
	return n, nil
}

func (m *Store) ListNotices(_ context.Context) ([]notice.Notice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]notice.Notice, 0, len(m.notices))
	for _, n := range m.notices {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Pinned != result[j].Pinned {
			return result[i].Pinned
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Store) DeleteNotice(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notices[id]; !ok {
		return svcerr.NotFound("notice", id)
	}
	delete(m.notices, id)
	return nil
}
