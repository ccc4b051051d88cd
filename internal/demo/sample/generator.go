package sample

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Event is one row of the sample dataset.
type Event struct {
	EventID    int64     `parquet:"event_id"`
	UserID     string    `parquet:"user_id"`
	SessionID  string    `parquet:"session_id"`
	EventType  string    `parquet:"event_type"`
	Amount     float64   `parquet:"amount"`
	Currency   string    `parquet:"currency"`
	Country    string    `parquet:"country"`
	Device     string    `parquet:"device"`
	Converted  bool      `parquet:"converted"`
	OccurredAt time.Time `parquet:"occurred_at,timestamp(millisecond)"`
}

// Columns lists the column names in file order.
var Columns = []string{
	"event_id", "user_id", "session_id", "event_type", "amount",
	"currency", "country", "device", "converted", "occurred_at",
}

// Generator produces a deterministic event stream for a seed.
type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
	clock           time.Time
}

func NewGenerator(seed int64, userCardinality int, start time.Time) *Generator {
	if userCardinality <= 0 {
		userCardinality = 1
	}
	return &Generator{
		rnd:             rand.New(rand.NewSource(seed)),
		userCardinality: userCardinality,
		clock:           start.UTC().Truncate(time.Second),
	}
}

func (g *Generator) NextEvent() Event {
	g.sequence++
	g.clock = g.clock.Add(time.Duration(g.rnd.Intn(30)+1) * time.Second)
	eventType := g.pickEventType()

	return Event{
		EventID:    g.sequence,
		UserID:     fmt.Sprintf("user-%04d", g.rnd.Intn(g.userCardinality)+1),
		SessionID:  fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
		EventType:  eventType,
		Amount:     g.pickAmount(eventType),
		Currency:   "USD",
		Country:    pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:     pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		Converted:  eventType == "purchase",
		OccurredAt: g.clock,
	}
}

// Events returns the next n events.
func (g *Generator) Events(n int) []Event {
	events := make([]Event, 0, max(n, 0))
	for i := 0; i < n; i++ {
		events = append(events, g.NextEvent())
	}
	return events
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
