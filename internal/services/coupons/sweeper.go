// Package coupons hosts the background sweeper that removes expired
// coupons on a cron schedule.
package coupons

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/storage"
)

// DefaultSweepSchedule runs the sweep nightly at 04:00.
const DefaultSweepSchedule = "0 4 * * *"

// Sweeper deletes expired coupons so dead rows do not pile up under
// profile coupon listings.
type Sweeper struct {
	store    storage.CouponStore
	schedule string
	log      *logging.Logger

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewSweeper creates a sweeper with the given cron schedule. An empty
// schedule selects the default.
func NewSweeper(store storage.CouponStore, schedule string, log *logging.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		log:      log.WithComponent("coupon-sweeper"),
	}
}

// Start schedules the sweep. An invalid schedule fails here, not at
// first tick.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	id, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.SweepOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.log.Infof("scheduled coupon sweep: %s", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOnce deletes coupons that expired before now and reports the
// count. It is exported so operators can trigger an immediate sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.store.DeleteExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("coupon sweep failed")
		return 0
	}
	if n > 0 {
		s.log.Infof("swept %d expired coupons", n)
	}
	return n
}
