package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/tracker/internal/config"
)

var statuses = []string{"in_transit", "loading", "unloading", "delayed", "parked", "maintenance", "idle"}

var alertTypes = []string{"temperature_high", "temperature_low", "humidity_high", "shock_detected", "power_outage", "tampering"}

type locationReport struct {
	DeviceID  string  `json:"device_id"`
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Direction int     `json:"direction"`
	Status    string  `json:"status"`
	Load      int     `json:"load"`
	Timestamp float64 `json:"timestamp"`
}

type alert struct {
	DeviceID  string  `json:"device_id"`
	AlertType string  `json:"alert_type"`
	Severity  string  `json:"severity"`
	Timestamp float64 `json:"timestamp"`
	Details   string  `json:"details"`
}

// device walks north along a road, one small step per report.
type device struct {
	id        string
	vehicleID string
	lat, lon  float64
	rng       *rand.Rand
}

func newDevice(i int, seed int64) *device {
	return &device{
		id:        fmt.Sprintf("D%04d", i),
		vehicleID: fmt.Sprintf("V%d", 100+i),
		lat:       30.0 + float64(i)*0.01,
		lon:       120.0,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (d *device) nextLocation(now time.Time) locationReport {
	d.lat += 0.0005 + d.rng.Float64()*0.001
	d.lon += -0.0005 + d.rng.Float64()*0.001

	status := statuses[d.rng.Intn(len(statuses))]
	var speed float64
	switch status {
	case "loading", "unloading", "maintenance", "idle":
		speed = 0
	case "delayed":
		speed = d.rng.Float64() * 10
	default:
		speed = 40 + d.rng.Float64()*40
	}

	return locationReport{
		DeviceID:  d.id,
		VehicleID: d.vehicleID,
		Latitude:  round(d.lat, 6),
		Longitude: round(d.lon, 6),
		Speed:     round(speed, 2),
		Status:    status,
		Load:      1 + d.rng.Intn(100),
		Timestamp: float64(now.UnixNano()) / 1e9,
	}
}

func (d *device) nextAlert(now time.Time) alert {
	return alert{
		DeviceID:  d.id,
		AlertType: alertTypes[d.rng.Intn(len(alertTypes))],
		Severity:  []string{"low", "medium", "high"}[d.rng.Intn(3)],
		Timestamp: float64(now.UnixNano()) / 1e9,
		Details:   "Alert triggered by device " + d.id,
	}
}

func round(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

func main() {
	devices := flag.Int("devices", 10, "number of simulated devices")
	interval := flag.Duration("interval", 5*time.Second, "delay between reports per device")
	alertRate := flag.Float64("alert-rate", 0.1, "probability of an alert per tick")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	fmt.Printf("Simulating %d devices against %v every %s\n", *devices, cfg.KafkaBrokers, *interval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *devices; i++ {
		d := newDevice(i, time.Now().UnixNano()+int64(i))
		g.Go(func() error {
			return run(ctx, w, cfg, d, *interval, *alertRate)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Simulator stopped: %v", err)
	}
	fmt.Println("Simulator stopped")
}

func run(ctx context.Context, w *kafka.Writer, cfg *config.Config, d *device, interval time.Duration, alertRate float64) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			msgs := make([]kafka.Message, 0, 2)

			loc, err := json.Marshal(d.nextLocation(now))
			if err != nil {
				return err
			}
			msgs = append(msgs, kafka.Message{Topic: cfg.LocationTopic, Key: []byte(d.id), Value: loc})

			if d.rng.Float64() < alertRate {
				a, err := json.Marshal(d.nextAlert(now))
				if err != nil {
					return err
				}
				msgs = append(msgs, kafka.Message{Topic: cfg.AlertsTopic, Key: []byte(d.id), Value: a})
			}

			if err := w.WriteMessages(ctx, msgs...); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("  ✗ %s: write failed: %v", d.id, err)
				continue
			}
			fmt.Printf("  ✓ %s → %s (%d messages)\n", d.id, d.vehicleID, len(msgs))
		}
	}
}
