// Package coupon defines the points-shop catalog and issued coupons.
package coupon

import "time"

// ShopItem is a redeemable catalog entry priced in points.
type ShopItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	ValidDays   int       `json:"valid_days"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Coupon is an issued, single-use voucher. The transition to used is
// one-way: a consumed coupon never becomes unused again.
type Coupon struct {
	ID        string     `json:"id"`
	ProfileID string     `json:"profile_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	IsUsed    bool       `json:"is_used"`
	Serial    string     `json:"serial,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the coupon is past its expiry at the given time.
func (c Coupon) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
