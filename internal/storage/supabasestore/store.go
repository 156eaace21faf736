// Package supabasestore implements the storage interfaces over the
// Supabase REST API. Balance changes that postgres expresses as one
// transaction are expressed here as conditional updates: each write
// carries a predicate on the value it read, and a concurrent mutation
// makes the write miss so it is retried against fresh state.
package supabasestore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/storage"
	"github.com/nitemap/nitemap/supabase/client"
)

// casAttempts bounds retries of a conditional balance update when a
// concurrent writer invalidates the read.
const casAttempts = 3

// Store implements the storage interfaces over a Supabase client.
type Store struct {
	client *client.Client
	log    *logging.Logger
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.PointsStore = (*Store)(nil)
var _ storage.VenueStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.ShopStore = (*Store)(nil)
var _ storage.NoticeStore = (*Store)(nil)

// New creates a Store over the given client. The client should hold
// the service role key so row level security does not hide rows from
// background jobs.
func New(c *client.Client, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{client: c, log: log.WithComponent("supabasestore")}
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	var row profileRow
	if err := s.client.From("profiles").Insert(ctx, profileToRow(p), &row); err != nil {
		return profile.Profile{}, svcerr.Internal("create profile", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var row profileRow
	err := s.client.From("profiles").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return profile.Profile{}, svcerr.NotFound("profile", id)
	}
	if err != nil {
		return profile.Profile{}, svcerr.Internal("get profile", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	patch := map[string]any{
		"nickname":   p.Nickname,
		"role":       string(p.Role),
		"blocked":    p.Blocked,
		"updated_at": time.Now().UTC(),
	}
	var row profileRow
	err := s.client.From("profiles").Eq("id", p.ID).Update(ctx, patch, &row)
	if errors.Is(err, client.ErrNoRows) {
		return profile.Profile{}, svcerr.NotFound("profile", p.ID)
	}
	if err != nil {
		return profile.Profile{}, svcerr.Internal("update profile", err)
	}
	return row.toDomain(), nil
}

// --- PointsStore ------------------------------------------------------------

func (s *Store) Credit(ctx context.Context, profileID string, incrementReview bool, entry ledger.Entry) (profile.Profile, error) {
	if entry.Amount <= 0 {
		return profile.Profile{}, svcerr.Validation("credit amount must be positive")
	}

	var updated profile.Profile
	err := s.casUpdate(ctx, profileID, func(cur profile.Profile) (map[string]any, error) {
		patch := map[string]any{
			"points":     cur.Points + entry.Amount,
			"updated_at": time.Now().UTC(),
		}
		if incrementReview {
			patch["review_count"] = cur.ReviewCount + 1
		}
		return patch, nil
	}, &updated)
	if err != nil {
		return profile.Profile{}, err
	}

	if err := s.appendLedger(ctx, profileID, entry); err != nil {
		// The balance is already applied. Surface the failure so the
		// caller does not treat the award as clean.
		s.log.WithError(err).WithFields(map[string]any{
			"profile_id": profileID,
			"amount":     entry.Amount,
		}).Error("balance updated but ledger append failed")
		return profile.Profile{}, err
	}
	return updated, nil
}

func (s *Store) DebitIfSufficient(ctx context.Context, profileID string, entry ledger.Entry) (profile.Profile, error) {
	if entry.Amount >= 0 {
		return profile.Profile{}, svcerr.Validation("debit amount must be negative")
	}
	cost := -entry.Amount

	var updated profile.Profile
	err := s.casUpdate(ctx, profileID, func(cur profile.Profile) (map[string]any, error) {
		if cur.Points < cost {
			return nil, svcerr.InsufficientPoints(cur.Points, cost)
		}
		return map[string]any{
			"points":     cur.Points - cost,
			"updated_at": time.Now().UTC(),
		}, nil
	}, &updated)
	if err != nil {
		return profile.Profile{}, err
	}

	if err := s.appendLedger(ctx, profileID, entry); err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"profile_id": profileID,
			"amount":     entry.Amount,
		}).Error("balance updated but ledger append failed")
		return profile.Profile{}, err
	}
	return updated, nil
}

func (s *Store) UpdateLevel(ctx context.Context, profileID string, level int) (profile.Profile, error) {
	patch := map[string]any{"level": level, "updated_at": time.Now().UTC()}
	var row profileRow
	err := s.client.From("profiles").Eq("id", profileID).Update(ctx, patch, &row)
	if errors.Is(err, client.ErrNoRows) {
		return profile.Profile{}, svcerr.NotFound("profile", profileID)
	}
	if err != nil {
		return profile.Profile{}, svcerr.Internal("update level", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListLedger(ctx context.Context, profileID string) ([]ledger.Entry, error) {
	var rows []ledgerRow
	err := s.client.From("ledger_entries").Select("*").
		Eq("profile_id", profileID).
		Order("created_at", false).
		Get(ctx, &rows)
	if err != nil {
		return nil, svcerr.Internal("list ledger", err)
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toDomain())
	}
	return entries, nil
}

// casUpdate reads the profile, asks mutate for a patch against what it
// read, and applies the patch conditioned on the points value still
// matching. A missed condition means a concurrent write landed first,
// in which case the cycle restarts against fresh state.
func (s *Store) casUpdate(ctx context.Context, profileID string, mutate func(cur profile.Profile) (map[string]any, error), out *profile.Profile) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		cur, err := s.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		patch, err := mutate(cur)
		if err != nil {
			return err
		}

		var row profileRow
		err = s.client.From("profiles").
			Eq("id", profileID).
			Eq("points", cur.Points).
			Update(ctx, patch, &row)
		if errors.Is(err, client.ErrNoRows) {
			continue
		}
		if err != nil {
			return svcerr.Internal("conditional profile update", err)
		}
		*out = row.toDomain()
		return nil
	}
	return svcerr.Conflict("profile balance contention, giving up")
}

func (s *Store) appendLedger(ctx context.Context, profileID string, entry ledger.Entry) error {
	entry.ProfileID = profileID
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.client.From("ledger_entries").Insert(ctx, ledgerToRow(entry), nil); err != nil {
		return svcerr.Internal("append ledger entry", err)
	}
	return nil
}

// --- VenueStore -------------------------------------------------------------

func (s *Store) CreateVenue(ctx context.Context, v venue.Venue) (venue.Venue, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	var row venueRow
	if err := s.client.From("venues").Insert(ctx, venueToRow(v), &row); err != nil {
		return venue.Venue{}, svcerr.Internal("create venue", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateVenue(ctx context.Context, v venue.Venue) (venue.Venue, error) {
	patch := map[string]any{
		"name":        v.Name,
		"category":    string(v.Category),
		"region":      v.Region,
		"address":     v.Address,
		"description": v.Description,
		"image_urls":  v.ImageURLs,
		"active":      v.Active,
		"updated_at":  time.Now().UTC(),
	}
	var row venueRow
	err := s.client.From("venues").Eq("id", v.ID).Update(ctx, patch, &row)
	if errors.Is(err, client.ErrNoRows) {
		return venue.Venue{}, svcerr.NotFound("venue", v.ID)
	}
	if err != nil {
		return venue.Venue{}, svcerr.Internal("update venue", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetVenue(ctx context.Context, id string) (venue.Venue, error) {
	var row venueRow
	err := s.client.From("venues").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return venue.Venue{}, svcerr.NotFound("venue", id)
	}
	if err != nil {
		return venue.Venue{}, svcerr.Internal("get venue", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListVenues(ctx context.Context, filter venue.Filter) ([]venue.Venue, error) {
	q := s.client.From("venues").Select("*").Order("name", true)
	if filter.Category != "" {
		q = q.Eq("category", string(filter.Category))
	}
	if filter.Region != "" {
		q = q.Eq("region", filter.Region)
	}
	if filter.Query != "" {
		q = q.ILike("name", "%"+filter.Query+"%")
	}

	var rows []venueRow
	if err := q.Get(ctx, &rows); err != nil {
		return nil, svcerr.Internal("list venues", err)
	}
	venues := make([]venue.Venue, 0, len(rows))
	for _, r := range rows {
		venues = append(venues, r.toDomain())
	}
	return venues, nil
}

func (s *Store) DeleteVenue(ctx context.Context, id string) error {
	n, err := s.client.From("venues").Eq("id", id).Delete(ctx)
	if err != nil {
		return svcerr.Internal("delete venue", err)
	}
	if n == 0 {
		return svcerr.NotFound("venue", id)
	}
	return nil
}

// --- PostStore --------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p board.Post) (board.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	var row postRow
	if err := s.client.From("posts").Insert(ctx, postToRow(p), &row); err != nil {
		return board.Post{}, svcerr.Internal("create post", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdatePost(ctx context.Context, p board.Post) (board.Post, error) {
	patch := map[string]any{
		"title":      p.Title,
		"content":    p.Content,
		"image_url":  p.ImageURL,
		"updated_at": time.Now().UTC(),
	}
	var row postRow
	err := s.client.From("posts").Eq("id", p.ID).Update(ctx, patch, &row)
	if errors.Is(err, client.ErrNoRows) {
		return board.Post{}, svcerr.NotFound("post", p.ID)
	}
	if err != nil {
		return board.Post{}, svcerr.Internal("update post", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetPost(ctx context.Context, id string) (board.Post, error) {
	var row postRow
	err := s.client.From("posts").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return board.Post{}, svcerr.NotFound("post", id)
	}
	if err != nil {
		return board.Post{}, svcerr.Internal("get post", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPosts(ctx context.Context, category board.Category) ([]board.Post, error) {
	q := s.client.From("posts").Select("*").Order("created_at", false)
	if category != "" {
		q = q.Eq("category", string(category))
	}

	var rows []postRow
	if err := q.Get(ctx, &rows); err != nil {
		return nil, svcerr.Internal("list posts", err)
	}
	posts := make([]board.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toDomain())
	}
	return posts, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	n, err := s.client.From("posts").Eq("id", id).Delete(ctx)
	if err != nil {
		return svcerr.Internal("delete post", err)
	}
	if n == 0 {
		return svcerr.NotFound("post", id)
	}
	return nil
}

// --- CommentStore -----------------------------------------------------------

func (s *Store) CreateComment(ctx context.Context, c board.Comment) (board.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	var row commentRow
	if err := s.client.From("comments").Insert(ctx, commentRow{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}, &row); err != nil {
		return board.Comment{}, svcerr.Internal("create comment", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetComment(ctx context.Context, id string) (board.Comment, error) {
	var row commentRow
	err := s.client.From("comments").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return board.Comment{}, svcerr.NotFound("comment", id)
	}
	if err != nil {
		return board.Comment{}, svcerr.Internal("get comment", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]board.Comment, error) {
	var rows []commentRow
	err := s.client.From("comments").Select("*").
		Eq("post_id", postID).
		Order("created_at", true).
		Get(ctx, &rows)
	if err != nil {
		return nil, svcerr.Internal("list comments", err)
	}
	comments := make([]board.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.toDomain())
	}
	return comments, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	n, err := s.client.From("comments").Eq("id", id).Delete(ctx)
	if err != nil {
		return svcerr.Internal("delete comment", err)
	}
	if n == 0 {
		return svcerr.NotFound("comment", id)
	}
	return nil
}

// --- CouponStore ------------------------------------------------------------

func (s *Store) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var row couponRow
	if err := s.client.From("coupons").Insert(ctx, couponToRow(c), &row); err != nil {
		return coupon.Coupon{}, svcerr.Internal("create coupon", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetCoupon(ctx context.Context, id string) (coupon.Coupon, error) {
	var row couponRow
	err := s.client.From("coupons").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return coupon.Coupon{}, svcerr.NotFound("coupon", id)
	}
	if err != nil {
		return coupon.Coupon{}, svcerr.Internal("get coupon", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListCoupons(ctx context.Context, profileID string) ([]coupon.Coupon, error) {
	var rows []couponRow
	err := s.client.From("coupons").Select("*").
		Eq("profile_id", profileID).
		Order("created_at", false).
		Get(ctx, &rows)
	if err != nil {
		return nil, svcerr.Internal("list coupons", err)
	}
	coupons := make([]coupon.Coupon, 0, len(rows))
	for _, r := range rows {
		coupons = append(coupons, r.toDomain())
	}
	return coupons, nil
}

// ConsumeCoupon stamps the coupon used. The is_used=false predicate
// makes the update a no-op for a coupon that was consumed concurrently,
// which surfaces as a conflict rather than a double spend.
func (s *Store) ConsumeCoupon(ctx context.Context, id, serial string, usedAt time.Time) (coupon.Coupon, error) {
	patch := map[string]any{
		"is_used": true,
		"serial":  serial,
		"used_at": usedAt,
	}
	var row couponRow
	err := s.client.From("coupons").
		Eq("id", id).
		Eq("is_used", false).
		Update(ctx, patch, &row)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, client.ErrNoRows) {
		return coupon.Coupon{}, svcerr.Internal("consume coupon", err)
	}

	// Nothing matched: the coupon is missing or already used.
	if _, getErr := s.GetCoupon(ctx, id); getErr != nil {
		return coupon.Coupon{}, getErr
	}
	return coupon.Coupon{}, svcerr.Conflict("coupon already used")
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.client.From("coupons").
		Lt("expires_at", cutoff.UTC().Format(time.RFC3339)).
		Delete(ctx)
	if err != nil {
		return 0, svcerr.Internal("delete expired coupons", err)
	}
	return n, nil
}

// --- ShopStore --------------------------------------------------------------

func (s *Store) CreateShopItem(ctx context.Context, item coupon.ShopItem) (coupon.ShopItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	var row shopItemRow
	if err := s.client.From("shop_items").Insert(ctx, shopItemRow{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		ValidDays:   item.ValidDays,
		Active:      item.Active,
		CreatedAt:   item.CreatedAt,
	}, &row); err != nil {
		return coupon.ShopItem{}, svcerr.Internal("create shop item", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetShopItem(ctx context.Context, id string) (coupon.ShopItem, error) {
	var row shopItemRow
	err := s.client.From("shop_items").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return coupon.ShopItem{}, svcerr.NotFound("shop item", id)
	}
	if err != nil {
		return coupon.ShopItem{}, svcerr.Internal("get shop item", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListShopItems(ctx context.Context, activeOnly bool) ([]coupon.ShopItem, error) {
	q := s.client.From("shop_items").Select("*").Order("price", true)
	if activeOnly {
		q = q.Eq("active", true)
	}

	var rows []shopItemRow
	if err := q.Get(ctx, &rows); err != nil {
		return nil, svcerr.Internal("list shop items", err)
	}
	items := make([]coupon.ShopItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toDomain())
	}
	return items, nil
}

// --- NoticeStore ------------------------------------------------------------

func (s *Store) CreateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	var row noticeRow
	if err := s.client.From("notices").Insert(ctx, noticeRow{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Pinned:    n.Pinned,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}, &row); err != nil {
		return notice.Notice{}, svcerr.Internal("create notice", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	patch := map[string]any{
		"title":      n.Title,
		"content":    n.Content,
		"pinned":     n.Pinned,
		"updated_at": time.Now().UTC(),
	}
	var row noticeRow
	err := s.client.From("notices").Eq("id", n.ID).Update(ctx, patch, &row)
	if errors.Is(err, client.ErrNoRows) {
		return notice.Notice{}, svcerr.NotFound("notice", n.ID)
	}
	if err != nil {
		return notice.Notice{}, svcerr.Internal("update notice", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetNotice(ctx context.Context, id string) (notice.Notice, error) {
	var row noticeRow
	err := s.client.From("notices").Select("*").Eq("id", id).Single().Get(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return notice.Notice{}, svcerr.NotFound("notice", id)
	}
	if err != nil {
		return notice.Notice{}, svcerr.Internal("get notice", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListNotices(ctx context.Context) ([]notice.Notice, error) {
	var rows []noticeRow
	err := s.client.From("notices").Select("*").
		Order("pinned", false).
		Order("created_at", false).
		Get(ctx, &rows)
	if err != nil {
		return nil, svcerr.Internal("list notices", err)
	}
	notices := make([]notice.Notice, 0, len(rows))
	for _, r := range rows {
		notices = append(notices, r.toDomain())
	}
	return notices, nil
}

func (s *Store) DeleteNotice(ctx context.Context, id string) error {
	n, err := s.client.From("notices").Eq("id", id).Delete(ctx)
	if err != nil {
		return svcerr.Internal("delete notice", err)
	}
	if n == 0 {
		return svcerr.NotFound("notice", id)
	}
	return nil
}
