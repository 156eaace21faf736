package venues

import (
	"context"
	"testing"

	"github.com/nitemap/nitemap/internal/domain/venue"
	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/storage/memory"
)

func TestCreateAndListVenues(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	for _, v := range []venue.Venue{
		{Name: "Neon Room", Category: venue.CategoryClub, Region: "downtown", Active: true},
		{Name: "Velvet Bar", Category: venue.CategoryBar, Region: "downtown", Active: true},
		{Name: "Harbor Lounge", Category: venue.CategoryLounge, Region: "harbor", Active: true},
	} {
		if _, err := svc.Create(ctx, v); err != nil {
			t.Fatalf("create %s: %v", v.Name, err)
		}
	}

	all, err := svc.List(ctx, venue.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 venues, got %d", len(all))
	}

	downtown, err := svc.List(ctx, venue.Filter{Region: "downtown"})
	if err != nil {
		t.Fatalf("list region: %v", err)
	}
	if len(downtown) != 2 {
		t.Fatalf("expected 2 downtown venues, got %d", len(downtown))
	}

	clubs, err := svc.List(ctx, venue.Filter{Category: venue.CategoryClub})
	if err != nil {
		t.Fatalf("list category: %v", err)
	}
	if len(clubs) != 1 || clubs[0].Name != "Neon Room" {
		t.Fatalf("unexpected clubs: %+v", clubs)
	}
}

func TestCreateVenueValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	cases := []venue.Venue{
		{Category: venue.CategoryBar, Region: "downtown"},
		{Name: "Nameless", Region: "downtown"},
		{Name: "Nowhere", Category: venue.CategoryBar},
		{Name: "Odd", Category: "arcade", Region: "downtown"},
	}
	for i, v := range cases {
		if _, err := svc.Create(ctx, v); !svcerr.IsCode(err, svcerr.CodeValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestListRejectsUnknownCategory(t *testing.T) {
	svc := New(memory.New(), nil, nil)

	if _, err := svc.List(context.Background(), venue.Filter{Category: "arcade"}); !svcerr.IsCode(err, svcerr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetMissingVenue(t *testing.T) {
	svc := New(memory.New(), nil, nil)

	if _, err := svc.Get(context.Background(), "missing"); !svcerr.IsCode(err, svcerr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
