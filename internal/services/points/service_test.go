package points

import (
	"context"
	"testing"
	"time"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/profile"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/storage/memory"
)

func newFixture(t *testing.T) (*Service, *memory.Store, profile.Profile) {
	t.Helper()
	store := memory.New()
	p, err := store.CreateProfile(context.Background(), profile.Profile{
		Nickname: "nina", Role: profile.RoleUser, Level: 1,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return New(store, store, store, nil, nil, nil), store, p
}

func TestAwardForReviewPostWithMedia(t *testing.T) {
	svc, store, p := newFixture(t)

	res, err := svc.AwardForPost(context.Background(), p.ID, board.CategoryReview, true, "post1")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if res.Amount != 110 {
		t.Fatalf("expected 110 points, got %d", res.Amount)
	}
	if res.Profile.Points != 110 || res.Profile.ReviewCount != 1 {
		t.Fatalf("unexpected profile: %+v", res.Profile)
	}
	// 110 points and 1 review meet the level 2 thresholds.
	if !res.LeveledUp || res.Profile.Level != 2 {
		t.Fatalf("expected level up to 2, got %+v", res)
	}

	entries, err := store.ListLedger(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 110 || entries[0].Reason != ledger.ReasonPostAward {
		t.Fatalf("unexpected ledger: %+v", entries)
	}
}

func TestAwardForFreePostWithoutMedia(t *testing.T) {
	svc, _, p := newFixture(t)

	res, err := svc.AwardForPost(context.Background(), p.ID, board.CategoryFree, false, "post1")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if res.Amount != 20 {
		t.Fatalf("expected 20 points, got %d", res.Amount)
	}
	if res.Profile.ReviewCount != 0 {
		t.Fatalf("free post incremented review count")
	}
	if res.LeveledUp {
		t.Fatalf("unexpected level up at 20 points")
	}
}

func TestLevelRequiresBothThresholds(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	// points=290, review_count=2, stored level 2.
	if _, err := store.Credit(ctx, p.ID, true, ledger.Entry{Amount: 190, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	if _, err := store.Credit(ctx, p.ID, true, ledger.Entry{Amount: 100, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	if _, err := store.UpdateLevel(ctx, p.ID, 2); err != nil {
		t.Fatalf("seed level: %v", err)
	}

	// An award bringing points past the level 3 minimum must not
	// advance the level while reviews stay below its minimum.
	res, err := svc.AwardForPost(ctx, p.ID, board.CategoryFree, true, "post1")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if res.Profile.Points != 320 {
		t.Fatalf("unexpected balance: %d", res.Profile.Points)
	}
	if res.LeveledUp || res.Profile.Level != 2 {
		t.Fatalf("level advanced without meeting review threshold: %+v", res)
	}
}

func TestRedeemDebitsAndIssuesCoupon(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	if _, err := store.Credit(ctx, p.ID, false, ledger.Entry{Amount: 500, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	item, err := store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "Free entry", Price: 300, ValidDays: 14, Active: true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	c, err := svc.Redeem(ctx, p.ID, item.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if c.Title != "Free entry" || c.IsUsed {
		t.Fatalf("unexpected coupon: %+v", c)
	}

	got, err := store.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Points != 200 {
		t.Fatalf("expected balance 200, got %d", got.Points)
	}

	entries, err := store.ListLedger(ctx, p.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if entries[0].Amount != -300 || entries[0].Reason != ledger.ReasonRedemption {
		t.Fatalf("redemption entry not negative: %+v", entries[0])
	}
}

func TestRedeemRejectsInsufficientBalance(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	item, err := store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "Free entry", Price: 300, ValidDays: 14, Active: true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	_, err = svc.Redeem(ctx, p.ID, item.ID)
	if !svcerr.IsCode(err, svcerr.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}

	got, _ := store.GetProfile(ctx, p.ID)
	if got.Points != 0 {
		t.Fatalf("balance mutated on rejected redemption: %d", got.Points)
	}
	entries, _ := store.ListLedger(ctx, p.ID)
	if len(entries) != 0 {
		t.Fatalf("ledger entry appended on rejected redemption: %+v", entries)
	}
}

func TestRedeemRejectsInactiveItem(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	if _, err := store.Credit(ctx, p.ID, false, ledger.Entry{Amount: 500, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	item, err := store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "Retired", Price: 100, ValidDays: 14, Active: false,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	if _, err := svc.Redeem(ctx, p.ID, item.ID); !svcerr.IsCode(err, svcerr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConsumeIsOneWay(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	if _, err := store.Credit(ctx, p.ID, false, ledger.Entry{Amount: 500, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	item, err := store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "Free entry", Price: 100, ValidDays: 14, Active: true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	c, err := svc.Redeem(ctx, p.ID, item.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	used, err := svc.Consume(ctx, p.ID, c.ID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !used.IsUsed || used.Serial == "" || used.UsedAt == nil {
		t.Fatalf("coupon not stamped: %+v", used)
	}

	if _, err := svc.Consume(ctx, p.ID, c.ID); !svcerr.IsCode(err, svcerr.CodeConflict) {
		t.Fatalf("expected conflict on double consume, got %v", err)
	}
}

func TestConsumeRejectsForeignCoupon(t *testing.T) {
	svc, store, p := newFixture(t)
	ctx := context.Background()

	other, err := store.CreateProfile(ctx, profile.Profile{Nickname: "rex", Role: profile.RoleUser, Level: 1})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	c, err := store.CreateCoupon(ctx, coupon.Coupon{
		ProfileID: other.ID, Title: "Free entry",
		ExpiresAt: timeInFuture(),
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	if _, err := svc.Consume(ctx, p.ID, c.ID); !svcerr.IsCode(err, svcerr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

type failingCouponStore struct {
	*memory.Store
}

func (f *failingCouponStore) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	return coupon.Coupon{}, svcerr.Internal("coupon insert failed", nil)
}

func TestRedeemRefundsWhenCouponCreationFails(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	p, err := store.CreateProfile(ctx, profile.Profile{Nickname: "nina", Role: profile.RoleUser, Level: 1})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if _, err := store.Credit(ctx, p.ID, false, ledger.Entry{Amount: 500, Reason: ledger.ReasonAdjustment}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	item, err := store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "Free entry", Price: 300, ValidDays: 14, Active: true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	svc := New(store, &failingCouponStore{store}, store, nil, nil, nil)
	if _, err := svc.Redeem(ctx, p.ID, item.ID); err == nil {
		t.Fatalf("expected redeem to fail")
	}

	got, _ := store.GetProfile(ctx, p.ID)
	if got.Points != 500 {
		t.Fatalf("debit not compensated, balance %d", got.Points)
	}

	entries, _ := store.ListLedger(ctx, p.ID)
	var sawRefund bool
	for _, e := range entries {
		if e.Reason == ledger.ReasonRefund && e.Amount == 300 {
			sawRefund = true
		}
	}
	if !sawRefund {
		t.Fatalf("no refund entry in ledger: %+v", entries)
	}
}

func timeInFuture() time.Time {
	return time.Now().UTC().Add(24 * time.Hour)
}
