package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/metrics"
	"github.com/nitemap/nitemap/internal/middleware"
	boardsvc "github.com/nitemap/nitemap/internal/services/board"
	noticesvc "github.com/nitemap/nitemap/internal/services/notices"
	"github.com/nitemap/nitemap/internal/services/points"
	venuesvc "github.com/nitemap/nitemap/internal/services/venues"
	"github.com/nitemap/nitemap/internal/storage/memory"
)

const apiTestSecret = "api-test-secret"

type fixture struct {
	router http.Handler
	store  *memory.Store
	user   profile.Profile
	admin  profile.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	log := logging.NewNop()
	m := metrics.New()

	user, err := store.CreateProfile(context.Background(), profile.Profile{
		Nickname: "nina", Role: profile.RoleUser, Level: 1,
	})
	require.NoError(t, err)
	admin, err := store.CreateProfile(context.Background(), profile.Profile{
		Nickname: "ops", Role: profile.RoleAdmin, Level: 1,
	})
	require.NoError(t, err)

	pts := points.New(store, store, store, nil, m, log)
	h := New(Config{
		Venues:   venuesvc.New(store, nil, log),
		Board:    boardsvc.New(store, store, pts, log),
		Points:   pts,
		Notices:  noticesvc.New(store),
		Profiles: store,
		Shop:     store,
		Auth:     middleware.NewAuthMiddleware(apiTestSecret, store, log),
		Metrics:  m,
		Logger:   log,
	})
	return &fixture{router: h.Router(), store: store, user: user, admin: admin}
}

func (f *fixture) token(t *testing.T, profileID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   profileID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(apiTestSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVenueListingIsPublic(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateVenue(context.Background(), venue.Venue{
		Name: "Neon Room", Category: venue.CategoryClub, Region: "downtown", Active: true,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/venues", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var listings []venue.Venue
	decodeInto(t, rec, &listings)
	require.Len(t, listings, 1)
	assert.Equal(t, "Neon Room", listings[0].Name)
}

func TestVenueWritesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"name": "Velvet", "category": "bar", "region": "riverside",
	}

	rec := f.do(t, http.MethodPost, "/api/venues", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/venues", f.token(t, f.user.ID), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/venues", f.token(t, f.admin.ID), body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreatePostAwardsPoints(t *testing.T) {
	f := newFixture(t)
	v, err := f.store.CreateVenue(context.Background(), venue.Venue{
		Name: "Neon Room", Category: venue.CategoryClub, Region: "downtown", Active: true,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/posts", f.token(t, f.user.ID), map[string]any{
		"category":  "review",
		"title":     "great sound system",
		"content":   "went last friday, the resident DJ was on fire",
		"venue_id":  v.ID,
		"image_url": "https://img.example/1.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/profile", f.token(t, f.user.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p profile.Profile
	decodeInto(t, rec, &p)
	assert.Equal(t, 110, p.Points)
	assert.Equal(t, 1, p.ReviewCount)
	assert.Equal(t, 2, p.Level)
}

func TestCreatePostRejectsAnonymous(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/posts", "", map[string]any{
		"category": "free", "title": "hi", "content": "anyone out tonight?",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidationErrorShape(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/posts", f.token(t, f.user.ID), map[string]any{
		"category": "free", "content": "no title here",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	decodeInto(t, rec, &body)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
}

func TestRedeemAndConsumeCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "free entry", Description: "one free cover charge",
		Price: 300, ValidDays: 30, Active: true,
	})
	require.NoError(t, err)
	_, err = f.store.Credit(ctx, f.user.ID, false, ledger.Entry{
		ProfileID: f.user.ID, Amount: 500, Reason: ledger.ReasonAdjustment,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/coupons/redeem", f.token(t, f.user.ID), map[string]any{
		"item_id": item.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c coupon.Coupon
	decodeInto(t, rec, &c)
	assert.False(t, c.IsUsed)

	rec = f.do(t, http.MethodGet, "/api/profile", f.token(t, f.user.ID), nil)
	var p profile.Profile
	decodeInto(t, rec, &p)
	assert.Equal(t, 200, p.Points)

	rec = f.do(t, http.MethodPost, "/api/coupons/"+c.ID+"/consume", f.token(t, f.user.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var used coupon.Coupon
	decodeInto(t, rec, &used)
	assert.True(t, used.IsUsed)
	assert.NotEmpty(t, used.Serial)

	rec = f.do(t, http.MethodPost, "/api/coupons/"+c.ID+"/consume", f.token(t, f.user.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConsumeRejectsForeignCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.store.CreateShopItem(ctx, coupon.ShopItem{
		Title: "free entry", Price: 100, ValidDays: 30, Active: true,
	})
	require.NoError(t, err)
	_, err = f.store.Credit(ctx, f.user.ID, false, ledger.Entry{
		ProfileID: f.user.ID, Amount: 100, Reason: ledger.ReasonAdjustment,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/coupons/redeem", f.token(t, f.user.ID), map[string]any{
		"item_id": item.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c coupon.Coupon
	decodeInto(t, rec, &c)

	rec = f.do(t, http.MethodPost, "/api/coupons/"+c.ID+"/consume", f.token(t, f.admin.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateProfileChangesNickname(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/profile", f.token(t, f.user.ID), map[string]any{
		"nickname": "nightowl",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var p profile.Profile
	decodeInto(t, rec, &p)
	assert.Equal(t, "nightowl", p.Nickname)
}

func TestLedgerReturnsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Credit(ctx, f.user.ID, false, ledger.Entry{
		ProfileID: f.user.ID, Amount: 20, Reason: ledger.ReasonPostAward,
	})
	require.NoError(t, err)
	_, err = f.store.Credit(ctx, f.user.ID, false, ledger.Entry{
		ProfileID: f.user.ID, Amount: 10, Reason: ledger.ReasonCommentAward,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/profile/ledger", f.token(t, f.user.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []ledger.Entry
	decodeInto(t, rec, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.ReasonCommentAward, entries[0].Reason)
}
