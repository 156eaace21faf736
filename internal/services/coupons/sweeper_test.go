package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/storage/memory"
)

func TestSweepOnceRemovesOnlyExpired(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	p, err := store.CreateProfile(ctx, profile.Profile{Nickname: "nina", Role: profile.RoleUser, Level: 1})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	now := time.Now().UTC()
	expired, err := store.CreateCoupon(ctx, coupon.Coupon{
		ProfileID: p.ID, Title: "old", ExpiresAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	live, err := store.CreateCoupon(ctx, coupon.Coupon{
		ProfileID: p.ID, Title: "fresh", ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	s := NewSweeper(store, "", nil)
	if n := s.SweepOnce(ctx); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}

	if _, err := store.GetCoupon(ctx, expired.ID); err == nil {
		t.Fatalf("expired coupon survived the sweep")
	}
	if _, err := store.GetCoupon(ctx, live.ID); err != nil {
		t.Fatalf("live coupon removed: %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(memory.New(), "not a schedule", nil)
	if err := s.Start(); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
