// Package board defines community board posts and comments.
package board

import "time"

// Category classifies a post and drives its point award.
type Category string

const (
	CategoryReview Category = "review"
	CategoryFree   Category = "free"
	CategoryMeetup Category = "meetup"
)

// Post is a community board entry.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	VenueID   string    `json:"venue_id,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
