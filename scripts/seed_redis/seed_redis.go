package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"fleet-monitor/tracker/internal/config"
	"fleet-monitor/tracker/internal/store"
)

type demoVehicle struct {
	id     string
	lat    string
	lon    string
	speed  string
	status string
	load   string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	rs, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	defer rs.Close()
	fmt.Println("✓ Connected")

	step1_vehicles(ctx, rs)
	step2_verify(ctx, rs)

	fmt.Println("\n✅ Redis seeded successfully")
}

func step1_vehicles(ctx context.Context, rs *store.RedisStore) {
	fmt.Println("\n── Step 1: Seeding vehicle states ──────────────")

	vehicles := []demoVehicle{
		{"V001", "31.2304", "121.4737", "42.5", "in_transit", "75"},
		{"V002", "31.2243", "121.4692", "0", "parked", "0"},
		{"V003", "31.2397", "121.4998", "18.2", "loading", "40"},
		{"V004", "31.1979", "121.4375", "55.0", "in_transit", "90"},
	}

	now := fmt.Sprint(time.Now().Unix())
	for _, v := range vehicles {
		err := rs.SetVehicleState(ctx, v.id, map[string]interface{}{
			store.FieldLat:       v.lat,
			store.FieldLon:       v.lon,
			store.FieldSpeed:     v.speed,
			store.FieldTimestamp: now,
			store.FieldStatus:    v.status,
			store.FieldLoad:      v.load,
		})
		if err != nil {
			log.Fatalf("Failed to seed %s: %v", v.id, err)
		}
		fmt.Printf("  ✓ %-45s → %s\n", store.VehicleKey(v.id), v.status)
	}
}

func step2_verify(ctx context.Context, rs *store.RedisStore) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	ids, err := rs.ListKnownVehicleIDs(ctx)
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d vehicles in registry\n", len(ids))

	state, err := rs.GetVehicleState(ctx, "V001")
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: V001 → %s at (%v, %v)\n", state.Status, *state.Latitude, *state.Longitude)
}
