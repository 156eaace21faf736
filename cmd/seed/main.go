// Command seed loads a starter catalog into the configured store: shop
// items, launch notices and a handful of venues.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/nitemap/nitemap/internal/config"
	"github.com/nitemap/nitemap/internal/domain/coupon"
	"github.com/nitemap/nitemap/internal/domain/notice"
	"github.com/nitemap/nitemap/internal/domain/venue"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/runtime"
)

var shopItems = []coupon.ShopItem{
	{Title: "Free entry", Description: "One free cover charge at any partner venue", Price: 300, ValidDays: 30, Active: true},
	{Title: "Welcome drink", Description: "One house cocktail or soft drink", Price: 150, ValidDays: 14, Active: true},
	{Title: "VIP table discount", Description: "20% off a table reservation", Price: 1000, ValidDays: 60, Active: true},
}

var notices = []notice.Notice{
	{Title: "Welcome to nitemap", Content: "Review venues to earn points and level up.", Pinned: true},
	{Title: "Point shop open", Content: "Redeem points for entry passes and drinks.", Pinned: false},
}

var venues = []venue.Venue{
	{Name: "Neon Room", Category: venue.CategoryClub, Region: "downtown", Address: "12 Canal St", Description: "Techno on weekends", Active: true},
	{Name: "Velvet", Category: venue.CategoryBar, Region: "riverside", Address: "3 Quay Walk", Description: "Cocktails until late", Active: true},
	{Name: "Afterhour", Category: venue.CategoryLounge, Region: "downtown", Address: "77 Mercer Ave", Description: "Quiet rooftop lounge", Active: true},
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional)")
		envFile    = flag.String("env", "", "Path to .env file (optional)")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env (%s): %v", *envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Logging).WithComponent("seed")
	store, db, err := runtime.OpenStore(cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	ctx := context.Background()
	for _, item := range shopItems {
		created, err := store.CreateShopItem(ctx, item)
		if err != nil {
			log.Fatalf("seed shop item %q: %v", item.Title, err)
		}
		logger.Infof("seeded shop item %s (%s)", created.Title, created.ID)
	}
	for _, n := range notices {
		created, err := store.CreateNotice(ctx, n)
		if err != nil {
			log.Fatalf("seed notice %q: %v", n.Title, err)
		}
		logger.Infof("seeded notice %s (%s)", created.Title, created.ID)
	}
	for _, v := range venues {
		created, err := store.CreateVenue(ctx, v)
		if err != nil {
			log.Fatalf("seed venue %q: %v", v.Name, err)
		}
		logger.Infof("seeded venue %s (%s)", created.Name, created.ID)
	}
}
