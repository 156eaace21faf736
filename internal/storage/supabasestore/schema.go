package supabasestore

import (
	"time"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
)

// Row types mirror the PostgREST table shapes exactly. Domain structs
// never cross the wire directly; every read and write goes through one
// of these.

type profileRow struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	Role        string    `json:"role"`
	Points      int       `json:"points"`
	ReviewCount int       `json:"review_count"`
	Level       int       `json:"level"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r profileRow) toDomain() profile.Profile {
	return profile.Profile{
		ID:          r.ID,
		Nickname:    r.Nickname,
		Role:        profile.Role(r.Role),
		Points:      r.Points,
		ReviewCount: r.ReviewCount,
		Level:       r.Level,
		Blocked:     r.Blocked,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func profileToRow(p profile.Profile) profileRow {
	return profileRow{
		ID:          p.ID,
		Nickname:    p.Nickname,
		Role:        string(p.Role),
		Points:      p.Points,
		ReviewCount: p.ReviewCount,
		Level:       p.Level,
		Blocked:     p.Blocked,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type ledgerRow struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	RefID     *string   `json:"ref_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (r ledgerRow) toDomain() ledger.Entry {
	e := ledger.Entry{
		ID:        r.ID,
		ProfileID: r.ProfileID,
		Amount:    r.Amount,
		Reason:    ledger.Reason(r.Reason),
		CreatedAt: r.CreatedAt,
	}
	if r.RefID != nil {
		e.RefID = *r.RefID
	}
	return e
}

func ledgerToRow(e ledger.Entry) ledgerRow {
	row := ledgerRow{
		ID:        e.ID,
		ProfileID: e.ProfileID,
		Amount:    e.Amount,
		Reason:    string(e.Reason),
		CreatedAt: e.CreatedAt,
	}
	if e.RefID != "" {
		row.RefID = &e.RefID
	}
	return row
}

type venueRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Region      string    `json:"region"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r venueRow) toDomain() venue.Venue {
	return venue.Venue{
		ID:          r.ID,
		Name:        r.Name,
		Category:    venue.Category(r.Category),
		Region:      r.Region,
		Address:     r.Address,
		Description: r.Description,
		ImageURLs:   r.ImageURLs,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func venueToRow(v venue.Venue) venueRow {
	return venueRow{
		ID:          v.ID,
		Name:        v.Name,
		Category:    string(v.Category),
		Region:      v.Region,
		Address:     v.Address,
		Description: v.Description,
		ImageURLs:   v.ImageURLs,
		Active:      v.Active,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

type postRow struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	VenueID   *string   `json:"venue_id"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r postRow) toDomain() board.Post {
	p := board.Post{
		ID:        r.ID,
		AuthorID:  r.AuthorID,
		Category:  board.Category(r.Category),
		Title:     r.Title,
		Content:   r.Content,
		ImageURL:  r.ImageURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.VenueID != nil {
		p.VenueID = *r.VenueID
	}
	return p
}

func postToRow(p board.Post) postRow {
	row := postRow{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Category:  string(p.Category),
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.VenueID != "" {
		row.VenueID = &p.VenueID
	}
	return row
}

type commentRow struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (r commentRow) toDomain() board.Comment {
	return board.Comment{
		ID:        r.ID,
		PostID:    r.PostID,
		AuthorID:  r.AuthorID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

type couponRow struct {
	ID        string     `json:"id"`
	ProfileID string     `json:"profile_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	IsUsed    bool       `json:"is_used"`
	Serial    *string    `json:"serial"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (r couponRow) toDomain() coupon.Coupon {
	c := coupon.Coupon{
		ID:        r.ID,
		ProfileID: r.ProfileID,
		Title:     r.Title,
		Content:   r.Content,
		IsUsed:    r.IsUsed,
		ExpiresAt: r.ExpiresAt,
		UsedAt:    r.UsedAt,
		CreatedAt: r.CreatedAt,
	}
	if r.Serial != nil {
		c.Serial = *r.Serial
	}
	return c
}

func couponToRow(c coupon.Coupon) couponRow {
	row := couponRow{
		ID:        c.ID,
		ProfileID: c.ProfileID,
		Title:     c.Title,
		Content:   c.Content,
		IsUsed:    c.IsUsed,
		ExpiresAt: c.ExpiresAt,
		UsedAt:    c.UsedAt,
		CreatedAt: c.CreatedAt,
	}
	if c.Serial != "" {
		row.Serial = &c.Serial
	}
	return row
}

type shopItemRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	ValidDays   int       `json:"valid_days"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r shopItemRow) toDomain() coupon.ShopItem {
	return coupon.ShopItem{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		ValidDays:   r.ValidDays,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

type noticeRow struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r noticeRow) toDomain() notice.Notice {
	return notice.Notice{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Pinned:    r.Pinned,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
