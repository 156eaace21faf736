package board

import (
	"context"
	"testing"

	"github.com/nitemap/nitemap/internal/domain/board"
	"github.com/nitemap/nitemap/internal/domain/ledger"
	"github.com/nitemap/nitemap/internal/domain/profile"
	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/services/points"
	"github.com/nitemap/nitemap/internal/storage/memory"
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	profile profile.Profile
	venue   venue.Venue
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	p, err := store.CreateProfile(ctx, profile.Profile{Nickname: "nina", Role: profile.RoleUser, Level: 1})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	v, err := store.CreateVenue(ctx, venue.Venue{
		Name: "Neon Room", Category: venue.CategoryClub, Region: "downtown", Active: true,
	})
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}

	pts := points.New(store, store, store, nil, nil, nil)
	return fixture{svc: New(store, store, pts, nil), store: store, profile: p, venue: v}
}

func TestCreatePostAwardsAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, board.Post{
		AuthorID: f.profile.ID,
		Category: board.CategoryReview,
		Title:    "Great night",
		Content:  "Loud but fun.",
		VenueID:  f.venue.ID,
		ImageURL: "https://cdn.example.com/img.jpg",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if res.AwardFailed {
		t.Fatalf("award reported failed")
	}
	if res.Award.Amount != 110 {
		t.Fatalf("expected 110 award, got %d", res.Award.Amount)
	}

	got, err := f.store.GetProfile(ctx, f.profile.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Points != 110 || got.ReviewCount != 1 {
		t.Fatalf("award not applied: %+v", got)
	}
}

func TestCreatePostSurvivesAwardFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A post by an unknown author persists even though the award cannot
	// find the profile to credit.
	res, err := f.svc.CreatePost(ctx, board.Post{
		AuthorID: "missing",
		Category: board.CategoryFree,
		Title:    "Hello",
		Content:  "First post",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if !res.AwardFailed {
		t.Fatalf("expected award failure to be reported")
	}

	if _, err := f.store.GetPost(ctx, res.Post.ID); err != nil {
		t.Fatalf("post not persisted: %v", err)
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		post board.Post
	}{
		{"empty title", board.Post{AuthorID: f.profile.ID, Category: board.CategoryFree, Content: "x"}},
		{"empty content", board.Post{AuthorID: f.profile.ID, Category: board.CategoryFree, Title: "x"}},
		{"bad category", board.Post{AuthorID: f.profile.ID, Category: "spam", Title: "x", Content: "y"}},
		{"review without venue", board.Post{AuthorID: f.profile.ID, Category: board.CategoryReview, Title: "x", Content: "y"}},
	}
	for _, tc := range cases {
		if _, err := f.svc.CreatePost(ctx, tc.post); !svcerr.IsCode(err, svcerr.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestUpdatePostRequiresAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, board.Post{
		AuthorID: f.profile.ID, Category: board.CategoryFree, Title: "t", Content: "c",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	edited := res.Post
	edited.Title = "edited"
	if _, err := f.svc.UpdatePost(ctx, "someone-else", edited); !svcerr.IsCode(err, svcerr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.UpdatePost(ctx, f.profile.ID, edited); err != nil {
		t.Fatalf("author edit: %v", err)
	}
}

func TestDeletePostAllowsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, board.Post{
		AuthorID: f.profile.ID, Category: board.CategoryFree, Title: "t", Content: "c",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	if err := f.svc.DeletePost(ctx, "mod", false, res.Post.ID); !svcerr.IsCode(err, svcerr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.svc.DeletePost(ctx, "mod", true, res.Post.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestCreateCommentAwardsAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, board.Post{
		AuthorID: f.profile.ID, Category: board.CategoryFree, Title: "t", Content: "c",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	before, _ := f.store.GetProfile(ctx, f.profile.ID)

	c, err := f.svc.CreateComment(ctx, board.Comment{
		PostID: res.Post.ID, AuthorID: f.profile.ID, Content: "agreed",
	})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}

	after, _ := f.store.GetProfile(ctx, f.profile.ID)
	if after.Points != before.Points+10 {
		t.Fatalf("comment award not applied: %d -> %d", before.Points, after.Points)
	}

	entries, _ := f.store.ListLedger(ctx, f.profile.ID)
	if entries[0].Reason != ledger.ReasonCommentAward || entries[0].RefID != c.ID {
		t.Fatalf("unexpected ledger head: %+v", entries[0])
	}
}

func TestCreateCommentRequiresExistingPost(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateComment(context.Background(), board.Comment{
		PostID: "missing", AuthorID: f.profile.ID, Content: "hi",
	})
	if !svcerr.IsCode(err, svcerr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
