package supabasestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nitemap/nitemap/internal/domain/ledger"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/supabase/client"
)

// fakeRest emulates the slice of PostgREST the store depends on: single
// object reads on profiles/coupons, conditional PATCHes that miss with
// PGRST116 when the filter predicate no longer holds, and ledger inserts.
type fakeRest struct {
	mu sync.Mutex

	profile      profileRow
	coupon       couponRow
	ledgerRows   int
	patchQueries []string

	// raceOnce bumps the stored balance before the first PATCH is
	// evaluated, simulating a concurrent writer.
	racePoints int
	raced      bool
}

func (f *fakeRest) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		q := r.URL.Query()

		switch {
		case table == "profiles" && r.Method == http.MethodGet:
			writeObject(w, f.profile)

		case table == "profiles" && r.Method == http.MethodPatch:
			f.patchQueries = append(f.patchQueries, r.URL.RawQuery)
			if f.racePoints != 0 && !f.raced {
				f.raced = true
				f.profile.Points = f.racePoints
			}
			want := fmt.Sprintf("eq.%d", f.profile.Points)
			if q.Get("points") != want {
				writeNoRows(w)
				return
			}
			var patch map[string]any
			json.NewDecoder(r.Body).Decode(&patch)
			if v, ok := patch["points"].(float64); ok {
				f.profile.Points = int(v)
			}
			if v, ok := patch["review_count"].(float64); ok {
				f.profile.ReviewCount = int(v)
			}
			writeObject(w, f.profile)

		case table == "ledger_entries" && r.Method == http.MethodPost:
			f.ledgerRows++
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))

		case table == "coupons" && r.Method == http.MethodGet:
			writeObject(w, f.coupon)

		case table == "coupons" && r.Method == http.MethodPatch:
			if q.Get("is_used") == "eq.false" && f.coupon.IsUsed {
				writeNoRows(w)
				return
			}
			f.coupon.IsUsed = true
			writeObject(w, f.coupon)

		default:
			http.NotFound(w, r)
		}
	})
}

func writeObject(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeNoRows(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"code":"PGRST116","message":"no rows returned"}`))
}

func newStore(t *testing.T, fake *fakeRest) *Store {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "test-key", Retry: &client.RetryConfig{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return New(c, logging.NewNop())
}

func seededProfile(points int) profileRow {
	now := time.Now().UTC()
	return profileRow{
		ID: "p1", Nickname: "nina", Role: "USER",
		Points: points, Level: 1, CreatedAt: now, UpdatedAt: now,
	}
}

func TestCreditPatchesConditionallyAndAppendsLedger(t *testing.T) {
	fake := &fakeRest{profile: seededProfile(40)}
	s := newStore(t, fake)

	p, err := s.Credit(context.Background(), "p1", true, ledger.Entry{
		Amount: 100, Reason: ledger.ReasonPostAward,
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if p.Points != 140 {
		t.Fatalf("expected 140 points, got %d", p.Points)
	}
	if p.ReviewCount != 1 {
		t.Fatalf("expected review count 1, got %d", p.ReviewCount)
	}
	if fake.ledgerRows != 1 {
		t.Fatalf("expected one ledger insert, got %d", fake.ledgerRows)
	}
	if len(fake.patchQueries) != 1 || !strings.Contains(fake.patchQueries[0], "points=eq.40") {
		t.Fatalf("patch should carry the read balance as a predicate: %v", fake.patchQueries)
	}
}

func TestCreditRetriesWhenConditionalUpdateLosesRace(t *testing.T) {
	fake := &fakeRest{profile: seededProfile(40), racePoints: 60}
	s := newStore(t, fake)

	p, err := s.Credit(context.Background(), "p1", false, ledger.Entry{
		Amount: 100, Reason: ledger.ReasonPostAward,
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if p.Points != 160 {
		t.Fatalf("expected retry against fresh balance to land on 160, got %d", p.Points)
	}
	if len(fake.patchQueries) != 2 {
		t.Fatalf("expected one miss plus one hit, got %d patches", len(fake.patchQueries))
	}
}

func TestDebitInsufficientRejectsBeforePatching(t *testing.T) {
	fake := &fakeRest{profile: seededProfile(50)}
	s := newStore(t, fake)

	_, err := s.DebitIfSufficient(context.Background(), "p1", ledger.Entry{
		Amount: -300, Reason: ledger.ReasonRedemption,
	})
	if !svcerr.IsCode(err, svcerr.CodeInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if len(fake.patchQueries) != 0 {
		t.Fatalf("insufficient balance must not reach the store: %v", fake.patchQueries)
	}
	if fake.ledgerRows != 0 {
		t.Fatalf("no ledger entry expected, got %d", fake.ledgerRows)
	}
}

func TestConsumeCouponConflictsWhenAlreadyUsed(t *testing.T) {
	serial := "A1"
	usedAt := time.Now().UTC()
	fake := &fakeRest{coupon: couponRow{
		ID: "c1", ProfileID: "p1", Title: "free entry",
		IsUsed: true, Serial: &serial, UsedAt: &usedAt,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}}
	s := newStore(t, fake)

	_, err := s.ConsumeCoupon(context.Background(), "c1", "B2", time.Now())
	if !svcerr.IsCode(err, svcerr.CodeConflict) {
		t.Fatalf("expected conflict for a used coupon, got %v", err)
	}
}

func TestConsumeCouponStampsSerialOnce(t *testing.T) {
	fake := &fakeRest{coupon: couponRow{
		ID: "c1", ProfileID: "p1", Title: "free entry",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}}
	s := newStore(t, fake)

	c, err := s.ConsumeCoupon(context.Background(), "c1", "B2", time.Now())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !c.IsUsed {
		t.Fatalf("coupon should be marked used")
	}

	_, err = s.ConsumeCoupon(context.Background(), "c1", "C3", time.Now())
	if !svcerr.IsCode(err, svcerr.CodeConflict) {
		t.Fatalf("second consume should conflict, got %v", err)
	}
}
