// Package httpapi exposes the directory over a REST API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/httputil"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/metrics"
	"github.com/nitemap/nitemap/internal/middleware"
	boardsvc "github.com/nitemap/nitemap/internal/services/board"
	noticesvc "github.com/nitemap/nitemap/internal/services/notices"
	"github.com/nitemap/nitemap/internal/services/points"
	venuesvc "github.com/nitemap/nitemap/internal/services/venues"
	"github.com/nitemap/nitemap/internal/storage"
)

// Config carries the wired services and middleware for the API.
type Config struct {
	Venues   *venuesvc.Service
	Board    *boardsvc.Service
	Points   *points.Service
	Notices  *noticesvc.Service
	Profiles storage.ProfileStore
	Shop     storage.ShopStore

	Auth        *middleware.AuthMiddleware
	CORS        *middleware.CORSMiddleware
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
}

// Handler serves the REST API.
type Handler struct {
	cfg Config
	log *logging.Logger
}

// New creates the API handler.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{cfg: cfg, log: log.WithComponent("httpapi")}
}

// Router builds the full route table with the middleware chain applied.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(h.log))
	if h.cfg.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("nitemap", h.cfg.Metrics))
	}
	if h.cfg.CORS != nil {
		r.Use(h.cfg.CORS.Handler)
	}
	if h.cfg.RateLimiter != nil {
		r.Use(h.cfg.RateLimiter.Handler)
	}

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if h.cfg.Metrics != nil {
		r.Handle("/metrics", h.cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Public reads carry an identity when a token is present but never
	// require one.
	public := r.PathPrefix("/api").Subrouter()
	public.Use(h.cfg.Auth.Optional().Handler)
	public.HandleFunc("/venues", h.handleListVenues).Methods(http.MethodGet)
	public.HandleFunc("/venues/{id}", h.handleGetVenue).Methods(http.MethodGet)
	public.HandleFunc("/posts", h.handleListPosts).Methods(http.MethodGet)
	public.HandleFunc("/posts/{id}", h.handleGetPost).Methods(http.MethodGet)
	public.HandleFunc("/posts/{id}/comments", h.handleListComments).Methods(http.MethodGet)
	public.HandleFunc("/notices", h.handleListNotices).Methods(http.MethodGet)
	public.HandleFunc("/notices/{id}", h.handleGetNotice).Methods(http.MethodGet)
	public.HandleFunc("/shop", h.handleListShop).Methods(http.MethodGet)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(h.cfg.Auth.Handler)
	authed.HandleFunc("/posts", h.handleCreatePost).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id}", h.handleUpdatePost).Methods(http.MethodPut)
	authed.HandleFunc("/posts/{id}", h.handleDeletePost).Methods(http.MethodDelete)
	authed.HandleFunc("/posts/{id}/comments", h.handleCreateComment).Methods(http.MethodPost)
	authed.HandleFunc("/comments/{id}", h.handleDeleteComment).Methods(http.MethodDelete)
	authed.HandleFunc("/coupons", h.handleListCoupons).Methods(http.MethodGet)
	authed.HandleFunc("/coupons/redeem", h.handleRedeem).Methods(http.MethodPost)
	authed.HandleFunc("/coupons/{id}/consume", h.handleConsume).Methods(http.MethodPost)
	authed.HandleFunc("/profile", h.handleGetProfile).Methods(http.MethodGet)
	authed.HandleFunc("/profile", h.handleUpdateProfile).Methods(http.MethodPut)
	authed.HandleFunc("/profile/ledger", h.handleListLedger).Methods(http.MethodGet)

	admin := r.PathPrefix("/api").Subrouter()
	admin.Use(h.cfg.Auth.Handler)
	admin.Use(middleware.RequireRole(string(profile.RoleAdmin)))
	admin.HandleFunc("/venues", h.handleCreateVenue).Methods(http.MethodPost)
	admin.HandleFunc("/venues/{id}", h.handleUpdateVenue).Methods(http.MethodPut)
	admin.HandleFunc("/venues/{id}", h.handleDeleteVenue).Methods(http.MethodDelete)
	admin.HandleFunc("/notices", h.handleCreateNotice).Methods(http.MethodPost)
	admin.HandleFunc("/notices/{id}", h.handleUpdateNotice).Methods(http.MethodPut)
	admin.HandleFunc("/notices/{id}", h.handleDeleteNotice).Methods(http.MethodDelete)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Venues ---

func (h *Handler) handleListVenues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := venue.Filter{
		Category: venue.Category(q.Get("category")),
		Region:   q.Get("region"),
		Query:    q.Get("q"),
	}
	listings, err := h.cfg.Venues.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listings)
}

func (h *Handler) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	v, err := h.cfg.Venues.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleCreateVenue(w http.ResponseWriter, r *http.Request) {
	var v venue.Venue
	if err := httputil.ReadJSON(r, &v); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.cfg.Venues.Create(r.Context(), v)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateVenue(w http.ResponseWriter, r *http.Request) {
	var v venue.Venue
	if err := httputil.ReadJSON(r, &v); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	v.ID = mux.Vars(r)["id"]
	updated, err := h.cfg.Venues.Update(r.Context(), v)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteVenue(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Venues.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Posts and comments ---

func (h *Handler) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.cfg.Board.ListPosts(r.Context(), board.Category(r.URL.Query().Get("category")))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.cfg.Board.GetPost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var p board.Post
	if err := httputil.ReadJSON(r, &p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p.AuthorID = middleware.GetUserID(r.Context())
	result, err := h.cfg.Board.CreatePost(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var p board.Post
	if err := httputil.ReadJSON(r, &p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := h.cfg.Board.UpdatePost(r.Context(), middleware.GetUserID(r.Context()), p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cfg.Board.DeletePost(ctx, middleware.GetUserID(ctx), h.isAdmin(r), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.cfg.Board.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var c board.Comment
	if err := httputil.ReadJSON(r, &c); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c.PostID = mux.Vars(r)["id"]
	c.AuthorID = middleware.GetUserID(r.Context())
	created, err := h.cfg.Board.CreateComment(r.Context(), c)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.cfg.Board.DeleteComment(ctx, middleware.GetUserID(ctx), h.isAdmin(r), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Notices ---

func (h *Handler) handleListNotices(w http.ResponseWriter, r *http.Request) {
	list, err := h.cfg.Notices.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetNotice(w http.ResponseWriter, r *http.Request) {
	n, err := h.cfg.Notices.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	var n notice.Notice
	if err := httputil.ReadJSON(r, &n); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.cfg.Notices.Create(r.Context(), n)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateNotice(w http.ResponseWriter, r *http.Request) {
	var n notice.Notice
	if err := httputil.ReadJSON(r, &n); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	n.ID = mux.Vars(r)["id"]
	updated, err := h.cfg.Notices.Update(r.Context(), n)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Notices.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Shop and coupons ---

func (h *Handler) handleListShop(w http.ResponseWriter, r *http.Request) {
	items, err := h.cfg.Shop.ListShopItems(r.Context(), true)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.cfg.Points.Coupons(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coupons)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.ItemID == "" {
		httputil.WriteError(w, r, svcerr.Validation("item_id required"))
		return
	}
	c, err := h.cfg.Points.Redeem(r.Context(), middleware.GetUserID(r.Context()), req.ItemID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.cfg.Points.Consume(ctx, middleware.GetUserID(ctx), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// --- Profile ---

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.cfg.Profiles.GetProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// handleUpdateProfile lets a member change display fields only. Balance,
// level, role and blocked state are owned by the services.
func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Nickname == "" {
		httputil.WriteError(w, r, svcerr.Validation("nickname required"))
		return
	}
	ctx := r.Context()
	p, err := h.cfg.Profiles.GetProfile(ctx, middleware.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p.Nickname = req.Nickname
	updated, err := h.cfg.Profiles.UpdateProfile(ctx, p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cfg.Points.Ledger(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) isAdmin(r *http.Request) bool {
	return middleware.GetUserRole(r.Context()) == string(profile.RoleAdmin)
}
