// Package storage defines the persistence interfaces for the directory.
package storage

import (
	"context"
	"time"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
)

// ProfileStore persists member profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
}

// PointsStore applies balance changes together with their ledger entries.
// Implementations keep the credit/debit and the appended entry as close to
// atomic as the backend allows: the postgres store uses one transaction,
// the supabase store uses conditional updates with compensation.
type PointsStore interface {
	// Credit adds entry.Amount (positive) to the profile balance,
	// optionally increments the review count, and appends the entry.
	Credit(ctx context.Context, profileID string, incrementReview bool, entry ledger.Entry) (profile.Profile, error)

	// DebitIfSufficient subtracts -entry.Amount (entry.Amount is negative)
	// from the balance only when the balance covers it, and appends the
	// entry. Insufficient balance returns a service error without mutating.
	DebitIfSufficient(ctx context.Context, profileID string, entry ledger.Entry) (profile.Profile, error)

	// UpdateLevel persists a recomputed level.
	UpdateLevel(ctx context.Context, profileID string, level int) (profile.Profile, error)

	// ListLedger returns the profile's ledger entries, newest first.
	ListLedger(ctx context.Context, profileID string) ([]ledger.Entry, error)
}

// VenueStore persists directory listings.
type VenueStore interface {
	CreateVenue(ctx context.Context, v venue.Venue) (venue.Venue, error)
	UpdateVenue(ctx context.Context, v venue.Venue) (venue.Venue, error)
	GetVenue(ctx context.Context, id string) (venue.Venue, error)
	ListVenues(ctx context.Context, filter venue.Filter) ([]venue.Venue, error)
	DeleteVenue(ctx context.Context, id string) error
}

// PostStore persists board posts.
type PostStore interface {
	CreatePost(ctx context.Context, p board.Post) (board.Post, error)
	UpdatePost(ctx context.Context, p board.Post) (board.Post, error)
	GetPost(ctx context.Context, id string) (board.Post, error)
	ListPosts(ctx context.Context, category board.Category) ([]board.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// CommentStore persists post comments.
type CommentStore interface {
	CreateComment(ctx context.Context, c board.Comment) (board.Comment, error)
	GetComment(ctx context.Context, id string) (board.Comment, error)
	ListComments(ctx context.Context, postID string) ([]board.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

// CouponStore persists issued coupons and the shop catalog.
type CouponStore interface {
	CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error)
	GetCoupon(ctx context.Context, id string) (coupon.Coupon, error)
	ListCoupons(ctx context.Context, profileID string) ([]coupon.Coupon, error)

	// ConsumeCoupon marks the coupon used with the serial and timestamp.
	// The update is conditional on is_used=false so concurrent consumers
	// cannot both succeed; an already-used coupon returns a conflict.
	ConsumeCoupon(ctx context.Context, id, serial string, usedAt time.Time) (coupon.Coupon, error)

	// DeleteExpiredBefore removes used or expired coupons whose expiry
	// passed before cutoff, returning the number removed.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ShopStore persists the points-shop catalog.
type ShopStore interface {
	CreateShopItem(ctx context.Context, item coupon.ShopItem) (coupon.ShopItem, error)
	GetShopItem(ctx context.Context, id string) (coupon.ShopItem, error)
	ListShopItems(ctx context.Context, activeOnly bool) ([]coupon.ShopItem, error)
}

// NoticeStore persists admin announcements.
type NoticeStore interface {
	CreateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error)
	UpdateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error)
	GetNotice(ctx context.Context, id string) (notice.Notice, error)
	ListNotices(ctx context.Context) ([]notice.Notice, error)
	DeleteNotice(ctx context.Context, id string) error
}
