// Package session tracks the authenticated identity and its resolution
// state. Exactly one Service exists per running application; it is
// constructed explicitly and injected into consumers rather than held as
// package state.
package session

import (
	"context"
	"sync"

	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/storage"
	"github.com/nitemap/nitemap/supabase/client"
)

// State is the session readiness tri-state. Consumers must not conflate
// Anonymous with Unresolved: the fetch guard defers work only while
// Unresolved.
type State int

const (
	// Unresolved means the initial identity check has not completed.
	Unresolved State = iota
	// Anonymous means resolution completed with no signed-in identity.
	Anonymous
	// Authenticated means resolution completed with a signed-in identity.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// EventType mirrors the auth backend's state-change notifications.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is an auth-state-change notification.
type Event struct {
	Type    EventType
	Session *client.Session
}

// AuthBackend is the slice of the auth API the session service consumes.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*client.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*client.Session, error)
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Snapshot is an immutable view of the session at one instant.
type Snapshot struct {
	State       State
	UserID      string
	AccessToken string
	Profile     *profile.Profile
}

// Service resolves and tracks the current session.
type Service struct {
	backend  AuthBackend
	profiles storage.ProfileStore
	log      *logging.Logger

	mu           sync.Mutex
	state        State
	userID       string
	accessToken  string
	refreshToken string
	prof         *profile.Profile

	readyOnce sync.Once
	readyCh   chan struct{}

	subscribers []chan Snapshot

	events chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session service in the Unresolved state.
func New(backend AuthBackend, profiles storage.ProfileStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("session")
	}
	return &Service{
		backend:  backend,
		profiles: profiles,
		log:      log,
		state:    Unresolved,
		readyCh:  make(chan struct{}),
		events:   make(chan Event, 8),
	}
}

// Start runs the initial resolution and the event loop. It returns once
// the loop is running; resolution completes asynchronously.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Resolve(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case event := <-s.events:
				s.handleEvent(runCtx, event)
			}
		}
	}()
	return nil
}

// Stop tears the service down. The session returns to Unresolved only on
// the next Start; an in-flight Stop leaves the last snapshot readable.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Notify delivers an auth-state-change event to the service. Events are
// processed in order on the event loop.
func (s *Service) Notify(event Event) {
	select {
	case s.events <- event:
	default:
		s.log.Warn("auth event dropped: queue full")
	}
}

// Ready returns a channel closed once the session leaves Unresolved.
func (s *Service) Ready() <-chan struct{} {
	return s.readyCh
}

// Snapshot returns the current session view.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		UserID:      s.userID,
		AccessToken: s.accessToken,
		Profile:     s.prof,
	}
}

// Subscribe registers a channel receiving a snapshot after every state
// change. Slow subscribers miss intermediate snapshots rather than block
// the service.
func (s *Service) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 4)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// SignIn authenticates with email and password, adopts the returned
// tokens and resolves the profile.
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	sess, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	s.adoptSession(sess)
	s.Resolve(ctx)
	return nil
}

// SignUp registers a new identity and adopts its session when the backend
// issues one immediately.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	sess, err := s.backend.SignUp(ctx, email, password, metadata)
	if err != nil {
		return err
	}
	if sess != nil && sess.AccessToken != "" {
		s.adoptSession(sess)
		s.Resolve(ctx)
	}
	return nil
}

// SignOut revokes the upstream session, clears all cached identity state
// and transitions to Anonymous.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	if token != "" {
		if err := s.backend.SignOut(ctx, token); err != nil {
			s.log.WithError(err).Warn("upstream sign-out failed; clearing local session anyway")
		}
	}
	s.transition(Anonymous, "", "", "", nil)
	return nil
}

// Resolve queries the auth backend for the current identity and settles
// the tri-state. Failures resolve to Anonymous: resolution fails open so
// the application never blocks on a broken auth backend.
func (s *Service) Resolve(ctx context.Context) {
	s.mu.Lock()
	token := s.accessToken
	refresh := s.refreshToken
	s.mu.Unlock()

	if token == "" {
		s.transition(Anonymous, "", "", "", nil)
		return
	}

	user, err := s.backend.GetUser(ctx, token)
	if err != nil {
		if apiErr := client.AsAPIError(err); apiErr != nil && apiErr.IsTransientAuth() && refresh != "" {
			if sess, refreshErr := s.backend.RefreshSession(ctx, refresh); refreshErr == nil {
				s.adoptSession(sess)
				s.mu.Lock()
				token = s.accessToken
				s.mu.Unlock()
				user, err = s.backend.GetUser(ctx, token)
			}
		}
	}
	if err != nil || user == nil {
		s.log.WithError(err).Warn("session resolution failed; resolving anonymous")
		s.transition(Anonymous, "", "", "", nil)
		return
	}

	prof := s.loadProfile(ctx, user)
	s.transition(Authenticated, user.ID, token, refresh, prof)
}

// loadProfile fetches the cached profile copy for the identity, creating
// it on first sign-in.
func (s *Service) loadProfile(ctx context.Context, user *client.User) *profile.Profile {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.GetProfile(ctx, user.ID)
	if err == nil {
		return &p
	}

	nickname := user.Email
	if v, ok := user.UserMetadata["nickname"].(string); ok && v != "" {
		nickname = v
	}
	created, err := s.profiles.CreateProfile(ctx, profile.Profile{
		ID:       user.ID,
		Nickname: nickname,
		Role:     profile.RoleUser,
		Level:    1,
	})
	if err != nil {
		s.log.WithError(err).Warn("profile bootstrap failed")
		return nil
	}
	return &created
}

func (s *Service) adoptSession(sess *client.Session) {
	s.mu.Lock()
	s.accessToken = sess.AccessToken
	s.refreshToken = sess.RefreshToken
	s.mu.Unlock()
}

func (s *Service) handleEvent(ctx context.Context, event Event) {
	switch event.Type {
	case EventSignedIn, EventTokenRefreshed:
		if event.Session != nil {
			s.adoptSession(event.Session)
		}
		s.Resolve(ctx)
	case EventSignedOut:
		s.transition(Anonymous, "", "", "", nil)
	}
}

func (s *Service) transition(state State, userID, accessToken, refreshToken string, prof *profile.Profile) {
	s.mu.Lock()
	s.state = state
	s.userID = userID
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.prof = prof
	snapshot := Snapshot{State: state, UserID: userID, AccessToken: accessToken, Profile: prof}
	subscribers := append([]chan Snapshot(nil), s.subscribers...)
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.readyCh) })

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	s.log.Debugf("session resolved: %s", state)
}

// WaitReady blocks until the session leaves Unresolved or the context
// expires.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.readyCh:
		return nil
	}
}

// InvalidateProfile drops the cached profile copy so the next access
// re-fetches it, used after mutations that change points or level.
func (s *Service) InvalidateProfile(ctx context.Context) {
	s.mu.Lock()
	userID := s.userID
	state := s.state
	s.mu.Unlock()
	if state != Authenticated || s.profiles == nil {
		return
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.log.WithError(err).Warn("profile refresh failed")
		return
	}
	s.mu.Lock()
	s.prof = &p
	s.mu.Unlock()
}
