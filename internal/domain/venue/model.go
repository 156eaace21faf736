// Package venue defines directory venue listings.
package venue

import "time"

// Category groups venues for browsing.
type Category string

const (
	CategoryBar        Category = "bar"
	CategoryClub       Category = "club"
	CategoryLounge     Category = "lounge"
	CategoryRestaurant Category = "restaurant"
	CategoryCafe       Category = "cafe"
)

// Venue is a directory listing.
type Venue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Region      string    `json:"region"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter narrows venue listings. Zero values match everything.
type Filter struct {
	Category Category
	Region   string
	Query    string
}
