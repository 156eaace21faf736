// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/storage"
)

// Store implements the storage interfaces over a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.PointsStore = (*Store)(nil)
var _ storage.VenueStore = (*Store)(nil)
var _ storage.PostStore = (*Store)(nil)
var _ storage.CommentStore = (*Store)(nil)
var _ storage.CouponStore = (*Store)(nil)
var _ storage.ShopStore = (*Store)(nil)
var _ storage.NoticeStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, nickname, role, points, review_count, level, blocked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Nickname, p.Role, p.Points, p.ReviewCount, p.Level, p.Blocked, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, svcerr.Internal("create profile", err)
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nickname, role, points, review_count, level, blocked, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)
	return scanProfile(row, id)
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET nickname = $2, role = $3, blocked = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Nickname, p.Role, p.Blocked, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, svcerr.Internal("update profile", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return profile.Profile{}, svcerr.NotFound("profile", p.ID)
	}
	return s.GetProfile(ctx, p.ID)
}

// --- PointsStore ------------------------------------------------------------

// Credit applies the balance change and the ledger append in one
// transaction, so a partial award can never be observed.
func (s *Store) Credit(ctx context.Context, profileID string, incrementReview bool, entry ledger.Entry) (profile.Profile, error) {
	if entry.Amount <= 0 {
		return profile.Profile{}, svcerr.Validation("credit amount must be positive")
	}
	var out profile.Profile
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		reviewInc := 0
		if incrementReview {
			reviewInc = 1
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE profiles
			SET points = points + $2, review_count = review_count + $3, updated_at = $4
			WHERE id = $1
			RETURNING id, nickname, role, points, review_count, level, blocked, created_at, updated_at
		`, profileID, entry.Amount, reviewInc, time.Now().UTC())

		var err error
		out, err = scanProfile(row, profileID)
		if err != nil {
			return err
		}
		return insertLedgerEntry(ctx, tx, profileID, entry)
	})
	if err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

// DebitIfSufficient debits conditionally on the current balance. The
// WHERE clause makes concurrent debits race safely: only one of two
// over-budget debits can match.
func (s *Store) DebitIfSufficient(ctx context.Context, profileID string, entry ledger.Entry) (profile.Profile, error) {
	if entry.Amount >= 0 {
		return profile.Profile{}, svcerr.Validation("debit amount must be negative")
	}
	cost := -entry.Amount

	var out profile.Profile
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE profiles
			SET points = points - $2, updated_at = $3
			WHERE id = $1 AND points >= $2
			RETURNING id, nickname, role, points, review_count, level, blocked, created_at, updated_at
		`, profileID, cost, time.Now().UTC())

		var err error
		out, err = scanProfile(row, profileID)
		if err == nil {
			return insertLedgerEntry(ctx, tx, profileID, entry)
		}
		if !svcerr.IsCode(err, svcerr.CodeNotFound) {
			return err
		}

		// No row matched: distinguish a missing profile from an
		// insufficient balance.
		var balance int
		scanErr := tx.QueryRowContext(ctx,
			`SELECT points FROM profiles WHERE id = $1`, profileID).Scan(&balance)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return svcerr.NotFound("profile", profileID)
		}
		if scanErr != nil {
			return svcerr.Internal("check balance", scanErr)
		}
		return svcerr.InsufficientPoints(balance, cost)
	})
	if err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

func (s *Store) UpdateLevel(ctx context.Context, profileID string, level int) (profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET level = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, nickname, role, points, review_count, level, blocked, created_at, updated_at
	`, profileID, level, time.Now().UTC())
	return scanProfile(row, profileID)
}

func (s *Store) ListLedger(ctx context.Context, profileID string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, amount, reason, ref_id, created_at
		FROM ledger_entries
		WHERE profile_id = $1
		ORDER BY created_at DESC
	`, profileID)
	if err != nil {
		return nil, svcerr.Internal("list ledger", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var refID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Amount, &e.Reason, &refID, &e.CreatedAt); err != nil {
			return nil, svcerr.Internal("scan ledger entry", err)
		}
		e.RefID = refID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, profileID string, entry ledger.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, profile_id, amount, reason, ref_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, entry.ID, profileID, entry.Amount, entry.Reason, entry.RefID, entry.CreatedAt)
	if err != nil {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO venues (id, name, category, region, address, description, image_urls, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.Name, v.Category, v.Region, v.Address, v.Description, pq.Array(v.ImageURLs), v.Active, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return venue.Venue{}, svcerr.Internal("create venue", err)
	}
	return v, nil
}

func (s *Store) UpdateVenue(ctx context.Context, v venue.Venue) (venue.Venue, error) {
	v.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE venues
		SET name = $2, category = $3, region = $4, address = $5, description = $6, image_urls = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, v.ID, v.Name, v.Category, v.Region, v.Address, v.Description, pq.Array(v.ImageURLs), v.Active, v.UpdatedAt)
	if err != nil {
		return venue.Venue{}, svcerr.Internal("update venue", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return venue.Venue{}, svcerr.NotFound("venue", v.ID)
	}
	return s.GetVenue(ctx, v.ID)
}

func (s *Store) GetVenue(ctx context.Context, id string) (venue.Venue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, region, address, description, image_urls, active, created_at, updated_at
		FROM venues
		WHERE id = $1
	`, id)

	var v venue.Venue
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.Region, &v.Address, &v.Description, pq.Array(&v.ImageURLs), &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return venue.Venue{}, svcerr.NotFound("venue", id)
	}
	if err != nil {
		return venue.Venue{}, svcerr.Internal("get venue", err)
	}
	return v, nil
}

func (s *Store) ListVenues(ctx context.Context, filter venue.Filter) ([]venue.Venue, error) {
	query := `
		SELECT id, name, category, region, address, description, image_urls, active, created_at, updated_at
		FROM venues
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR region = $2)
		  AND ($3 = '' OR name ILIKE '%' || $3 || '%')
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, string(filter.Category), filter.Region, filter.Query)
	if err != nil {
		return nil, svcerr.Internal("list venues", err)
	}
	defer rows.Close()

	var venues []venue.Venue
	for rows.Next() {
		var v venue.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.Region, &v.Address, &v.Description, pq.Array(&v.ImageURLs), &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, svcerr.Internal("scan venue", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

func (s *Store) DeleteVenue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM venues WHERE id = $1`, id)
	if err != nil {
		return svcerr.Internal("delete venue", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, category, title, content, venue_id, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, p.ID, p.AuthorID, p.Category, p.Title, p.Content, p.VenueID, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return board.Post{}, svcerr.Internal("create post", err)
	}
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, p board.Post) (board.Post, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET title = $2, content = $3, image_url = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Title, p.Content, p.ImageURL, p.UpdatedAt)
	if err != nil {
		return board.Post{}, svcerr.Internal("update post", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return board.Post{}, svcerr.NotFound("post", p.ID)
	}
	return s.GetPost(ctx, p.ID)
}

func (s *Store) GetPost(ctx context.Context, id string) (board.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, category, title, content, COALESCE(venue_id, ''), image_url, created_at, updated_at
		FROM posts
		WHERE id = $1
	`, id)

	var p board.Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Category, &p.Title, &p.Content, &p.VenueID, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Post{}, svcerr.NotFound("post", id)
	}
	if err != nil {
		return board.Post{}, svcerr.Internal("get post", err)
	}
	return p, nil
}

func (s *Store) ListPosts(ctx context.Context, category board.Category) ([]board.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, category, title, content, COALESCE(venue_id, ''), image_url, created_at, updated_at
		FROM posts
		WHERE ($1 = '' OR category = $1)
		ORDER BY created_at DESC
	`, string(category))
	if err != nil {
		return nil, svcerr.Internal("list posts", err)
	}
	defer rows.Close()

	var posts []board.Post
	for rows.Next() {
		var p board.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Category, &p.Title, &p.Content, &p.VenueID, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, svcerr.Internal("scan post", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return svcerr.Internal("delete post", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.PostID, c.AuthorID, c.Content, c.CreatedAt)
	if err != nil {
		return board.Comment{}, svcerr.Internal("create comment", err)
	}
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (board.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, author_id, content, created_at
		FROM comments
		WHERE id = $1
	`, id)

	var c board.Comment
	err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Comment{}, svcerr.NotFound("comment", id)
	}
	if err != nil {
		return board.Comment{}, svcerr.Internal("get comment", err)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, postID string) ([]board.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, author_id, content, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at
	`, postID)
	if err != nil {
		return nil, svcerr.Internal("list comments", err)
	}
	defer rows.Close()

	var comments []board.Comment
	for rows.Next() {
		var c board.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, svcerr.Internal("scan comment", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return svcerr.Internal("delete comment", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, profile_id, title, content, is_used, serial, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, c.ID, c.ProfileID, c.Title, c.Content, c.IsUsed, c.Serial, c.ExpiresAt, c.UsedAt, c.CreatedAt)
	if err != nil {
		return coupon.Coupon{}, svcerr.Internal("create coupon", err)
	}
	return c, nil
}

func (s *Store) GetCoupon(ctx context.Context, id string) (coupon.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, title, content, is_used, COALESCE(serial, ''), expires_at, used_at, created_at
		FROM coupons
		WHERE id = $1
	`, id)
	return scanCoupon(row, id)
}

func (s *Store) ListCoupons(ctx context.Context, profileID string) ([]coupon.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, title, content, is_used, COALESCE(serial, ''), expires_at, used_at, created_at
		FROM coupons
		WHERE profile_id = $1
		ORDER BY created_at DESC
	`, profileID)
	if err != nil {
		return nil, svcerr.Internal("list coupons", err)
	}
	defer rows.Close()

	var coupons []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows, "")
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// ConsumeCoupon stamps the coupon used. The is_used = FALSE predicate
// keeps concurrent consumers from both succeeding.
func (s *Store) ConsumeCoupon(ctx context.Context, id, serial string, usedAt time.Time) (coupon.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET is_used = TRUE, serial = $2, used_at = $3
		WHERE id = $1 AND is_used = FALSE
		RETURNING id, profile_id, title, content, is_used, COALESCE(serial, ''), expires_at, used_at, created_at
	`, id, serial, usedAt)

	c, err := scanCoupon(row, id)
	if err == nil {
		return c, nil
	}
	if !svcerr.IsCode(err, svcerr.CodeNotFound) {
		return coupon.Coupon{}, err
	}

	// No row matched: either the coupon is gone or it was already used.
	var used bool
	scanErr := s.db.QueryRowContext(ctx,
		`SELECT is_used FROM coupons WHERE id = $1`, id).Scan(&used)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return coupon.Coupon{}, svcerr.NotFound("coupon", id)
	}
	if scanErr != nil {
		return coupon.Coupon{}, svcerr.Internal("check coupon", scanErr)
	}
	return coupon.Coupon{}, svcerr.Conflict("coupon already used")
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM coupons WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, svcerr.Internal("delete expired coupons", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- ShopStore --------------------------------------------------------------

func (s *Store) CreateShopItem(ctx context.Context, item coupon.ShopItem) (coupon.ShopItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shop_items (id, title, description, price, valid_days, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.Title, item.Description, item.Price, item.ValidDays, item.Active, item.CreatedAt)
	if err != nil {
		return coupon.ShopItem{}, svcerr.Internal("create shop item", err)
	}
	return item, nil
}

func (s *Store) GetShopItem(ctx context.Context, id string) (coupon.ShopItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, price, valid_days, active, created_at
		FROM shop_items
		WHERE id = $1
	`, id)

	var item coupon.ShopItem
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Price, &item.ValidDays, &item.Active, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return coupon.ShopItem{}, svcerr.NotFound("shop item", id)
	}
	if err != nil {
		return coupon.ShopItem{}, svcerr.Internal("get shop item", err)
	}
	return item, nil
}

func (s *Store) ListShopItems(ctx context.Context, activeOnly bool) ([]coupon.ShopItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, price, valid_days, active, created_at
		FROM shop_items
		WHERE ($1 = FALSE OR active = TRUE)
		ORDER BY price
	`, activeOnly)
	if err != nil {
		return nil, svcerr.Internal("list shop items", err)
	}
	defer rows.Close()

	var items []coupon.ShopItem
	for rows.Next() {
		var item coupon.ShopItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.Price, &item.ValidDays, &item.Active, &item.CreatedAt); err != nil {
			return nil, svcerr.Internal("scan shop item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- NoticeStore ------------------------------------------------------------

func (s *Store) CreateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, title, content, pinned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.Title, n.Content, n.Pinned, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return notice.Notice{}, svcerr.Internal("create notice", err)
	}
	return n, nil
}

func (s *Store) UpdateNotice(ctx context.Context, n notice.Notice) (notice.Notice, error) {
	n.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE notices
		SET title = $2, content = $3, pinned = $4, updated_at = $5
		WHERE id = $1
	`, n.ID, n.Title, n.Content, n.Pinned, n.UpdatedAt)
	if err != nil {
		return notice.Notice{}, svcerr.Internal("update notice", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notice.Notice{}, svcerr.NotFound("notice", n.ID)
	}
	return s.GetNotice(ctx, n.ID)
}

func (s *Store) GetNotice(ctx context.Context, id string) (notice.Notice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, pinned, created_at, updated_at
		FROM notices
		WHERE id = $1
	`, id)

	var n notice.Notice
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Pinned, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notice.Notice{}, svcerr.NotFound("notice", id)
	}
	if err != nil {
		return notice.Notice{}, svcerr.Internal("get notice", err)
	}
	return n, nil
}

func (s *Store) ListNotices(ctx context.Context) ([]notice.Notice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, pinned, created_at, updated_at
		FROM notices
		ORDER BY pinned DESC, created_at DESC
	`)
	if err != nil {
		return nil, svcerr.Internal("list notices", err)
	}
	defer rows.Close()

	var notices []notice.Notice
	for rows.Next() {
		var n notice.Notice
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Pinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, svcerr.Internal("scan notice", err)
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

func (s *Store) DeleteNotice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notices WHERE id = $1`, id)
	if err != nil {
		return svcerr.Internal("delete notice", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return svcerr.NotFound("notice", id)
	}
	return nil
}

// --- helpers ----------------------------------------------------------------

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return svcerr.Internal("begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return svcerr.Internal("commit tx", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner, id string) (profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(&p.ID, &p.Nickname, &p.Role, &p.Points, &p.ReviewCount, &p.Level, &p.Blocked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, svcerr.NotFound("profile", id)
	}
	if err != nil {
		return profile.Profile{}, svcerr.Internal("scan profile", err)
	}
	return p, nil
}

func scanCoupon(row rowScanner, id string) (coupon.Coupon, error) {
	var c coupon.Coupon
	var usedAt sql.NullTime
	err := row.Scan(&c.ID, &c.ProfileID, &c.Title, &c.Content, &c.IsUsed, &c.Serial, &c.ExpiresAt, &usedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return coupon.Coupon{}, svcerr.NotFound("coupon", id)
	}
	if err != nil {
		return coupon.Coupon{}, svcerr.Internal("scan coupon", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return c, nil
}
