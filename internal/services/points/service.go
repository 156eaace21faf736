// Package points applies the award, redemption and leveling rules over
// the ledger-backed stores.
package points

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/profile"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/metrics"
	"github.com/nitemap/nitemap/internal/storage"
)

// Award amounts by content kind. Review posts pay the most because they
// feed the leveling requirements.
const (
	reviewAward  = 100
	defaultAward = 20
	mediaBonus   = 10
	commentAward = 10
)

// Service owns point balances, the ledger and coupon redemption.
type Service struct {
	points     storage.PointsStore
	coupons    storage.CouponStore
	shop       storage.ShopStore
	thresholds []profile.Threshold
	metrics    *metrics.Metrics
	log        *logging.Logger
}

// New creates the points service. Passing nil thresholds selects the
// default leveling table; the metrics bundle may be nil.
func New(points storage.PointsStore, coupons storage.CouponStore, shop storage.ShopStore, thresholds []profile.Threshold, m *metrics.Metrics, log *logging.Logger) *Service {
	if thresholds == nil {
		thresholds = profile.DefaultThresholds
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		points:     points,
		coupons:    coupons,
		shop:       shop,
		thresholds: thresholds,
		metrics:    m,
		log:        log.WithComponent("points"),
	}
}

// AwardResult reports the outcome of a content award.
type AwardResult struct {
	Profile   profile.Profile
	Amount    int
	LeveledUp bool
}

// AwardForPost credits the author for a new post. Review posts also
// advance the review count, which feeds the leveling requirements.
func (s *Service) AwardForPost(ctx context.Context, authorID string, category board.Category, hasMedia bool, postID string) (AwardResult, error) {
	amount := defaultAward
	if category == board.CategoryReview {
		amount = reviewAward
	}
	if hasMedia {
		amount += mediaBonus
	}

	entry := ledger.Entry{
		Amount: amount,
		Reason: ledger.ReasonPostAward,
		RefID:  postID,
	}
	return s.credit(ctx, authorID, category == board.CategoryReview, entry)
}

// AwardForComment credits the author for a new comment.
func (s *Service) AwardForComment(ctx context.Context, authorID, commentID string) (AwardResult, error) {
	entry := ledger.Entry{
		Amount: commentAward,
		Reason: ledger.ReasonCommentAward,
		RefID:  commentID,
	}
	return s.credit(ctx, authorID, false, entry)
}

func (s *Service) credit(ctx context.Context, profileID string, incrementReview bool, entry ledger.Entry) (AwardResult, error) {
	p, err := s.points.Credit(ctx, profileID, incrementReview, entry)
	if err != nil {
		return AwardResult{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordPointsAwarded(entry.Amount)
	}

	result := AwardResult{Profile: p, Amount: entry.Amount}

	next := profile.EvaluateLevel(s.thresholds, p.Points, p.ReviewCount, p.Level)
	if next > p.Level {
		updated, err := s.points.UpdateLevel(ctx, profileID, next)
		if err != nil {
			// The award itself landed. Report it, keep the stale level
			// and let the next award re-evaluate.
			s.log.WithError(err).WithFields(map[string]any{
				"profile_id": profileID,
				"level":      next,
			}).Error("level update failed after award")
			return result, nil
		}
		result.Profile = updated
		result.LeveledUp = true
		if s.metrics != nil {
			s.metrics.RecordLevelUp()
		}
	}
	return result, nil
}

// Redeem exchanges points for a coupon of the given shop item. The
// debit is conditional on the balance covering the price; if the coupon
// insert then fails, the debit is compensated with a refund credit.
func (s *Service) Redeem(ctx context.Context, profileID, itemID string) (coupon.Coupon, error) {
	item, err := s.shop.GetShopItem(ctx, itemID)
	if err != nil {
		return coupon.Coupon{}, err
	}
	if !item.Active {
		return coupon.Coupon{}, svcerr.Validation("shop item is not available")
	}

	debit := ledger.Entry{
		Amount: -item.Price,
		Reason: ledger.ReasonRedemption,
		RefID:  itemID,
	}
	if _, err := s.points.DebitIfSufficient(ctx, profileID, debit); err != nil {
		return coupon.Coupon{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordPointsSpent(item.Price)
	}

	now := time.Now().UTC()
	c, err := s.coupons.CreateCoupon(ctx, coupon.Coupon{
		ProfileID: profileID,
		Title:     item.Title,
		Content:   item.Description,
		ExpiresAt: now.AddDate(0, 0, item.ValidDays),
		CreatedAt: now,
	})
	if err != nil {
		s.refund(ctx, profileID, item.Price, itemID)
		return coupon.Coupon{}, err
	}
	return c, nil
}

// refund compensates a debit whose follow-up mutation failed. A failed
// refund leaves the books wrong and is logged loudly for manual repair.
func (s *Service) refund(ctx context.Context, profileID string, amount int, refID string) {
	_, err := s.points.Credit(ctx, profileID, false, ledger.Entry{
		Amount: amount,
		Reason: ledger.ReasonRefund,
		RefID:  refID,
	})
	if err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"profile_id": profileID,
			"amount":     amount,
			"ref_id":     refID,
		}).Error("refund after failed redemption did not apply")
	}
}

// Consume marks the holder's coupon used and stamps it with a serial.
// A coupon can be consumed exactly once.
func (s *Service) Consume(ctx context.Context, profileID, couponID string) (coupon.Coupon, error) {
	c, err := s.coupons.GetCoupon(ctx, couponID)
	if err != nil {
		return coupon.Coupon{}, err
	}
	if c.ProfileID != profileID {
		return coupon.Coupon{}, svcerr.Forbidden("coupon belongs to another profile")
	}
	now := time.Now().UTC()
	if c.Expired(now) {
		return coupon.Coupon{}, svcerr.Validation("coupon has expired")
	}
	if c.IsUsed {
		return coupon.Coupon{}, svcerr.Conflict("coupon already used")
	}
	return s.coupons.ConsumeCoupon(ctx, couponID, uuid.NewString(), now)
}

// Coupons lists the profile's coupons, newest first.
func (s *Service) Coupons(ctx context.Context, profileID string) ([]coupon.Coupon, error) {
	return s.coupons.ListCoupons(ctx, profileID)
}

// Ledger lists the profile's point history, newest first.
func (s *Service) Ledger(ctx context.Context, profileID string) ([]ledger.Entry, error) {
	return s.points.ListLedger(ctx, profileID)
}
