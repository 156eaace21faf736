// Package profile defines the member profile and leveling rules.
package profile

import "time"

// Role grants capabilities within the directory.
type Role string

const (
	RoleUser    Role = "USER"
	RoleVeteran Role = "VETERAN"
	RoleAdmin   Role = "ADMIN"
)

// Profile is the mutable record attached to an authenticated identity.
type Profile struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	Role        Role      `json:"role"`
	Points      int       `json:"points"`
	ReviewCount int       `json:"review_count"`
	Level       int       `json:"level"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Threshold is the minimum points and review count required for a level.
type Threshold struct {
	Level      int `json:"level"`
	MinPoints  int `json:"min_points"`
	MinReviews int `json:"min_reviews"`
}

// DefaultThresholds is the static leveling table, ordered by level.
// Both minimums must be met for a level to apply.
var DefaultThresholds = []Threshold{
	{Level: 1, MinPoints: 0, MinReviews: 0},
	{Level: 2, MinPoints: 100, MinReviews: 1},
	{Level: 3, MinPoints: 300, MinReviews: 3},
	{Level: 4, MinPoints: 1000, MinReviews: 10},
	{Level: 5, MinPoints: 3000, MinReviews: 30},
}

// EvaluateLevel returns the level the given counters qualify for under the
// thresholds, checked highest-first. The result never goes below current:
// levels are monotonically non-decreasing.
func EvaluateLevel(thresholds []Threshold, points, reviews, current int) int {
	for i := len(thresholds) - 1; i >= 0; i-- {
		t := thresholds[i]
		if points >= t.MinPoints && reviews >= t.MinReviews {
			if t.Level > current {
				return t.Level
			}
			break
		}
	}
	return current
}
