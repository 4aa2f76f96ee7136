package contracts

import (
	"fmt"
	"time"
)

// PriceBar is one instrument-day of raw OHLCV plus the adjustment
// factor in force on that day. (Code, TradeDate) is the natural key;
// bars are append-only once a date is final.
type PriceBar struct {
	Code      string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjFactor float64
	Volume    float64
	Amount    float64
}

// Instrument is the reference record for one listed security. The core
// treats it as a key plus display attributes; the instrument list
// collaborator owns its lifecycle.
type Instrument struct {
	Code     string
	Name     string
	Industry string
	Market   string
	ListDate time.Time
}

// BreadthStat is the per-day, per-window new-high/new-low count.
type BreadthStat struct {
	TradeDate time.Time
	Window    string // window label, e.g. "52w"
	HighCount int
	LowCount  int
	NetHigh   int // HighCount - LowCount
}

// Candidate is one instrument passing the quality-momentum screen, with
// the metrics that qualified it. Request-scoped; never persisted.
type Candidate struct {
	Code         string
	Name         string
	Industry     string
	TradeDate    time.Time
	LastClose    float64 // adjusted
	MarketValue  float64
	RecentReturn float64
	ReboundRatio float64
	TrendSlope   float64
	Volatility   float64
}

// Watermark keys in the run_status table.
const (
	KeyLastUpdate     = "last_update"
	KeyLastFullUpdate = "last_full_update"
)

// WindowLabel formats a week count as the persisted window label.
func WindowLabel(weeks int) string {
	return fmt.Sprintf("%dw", weeks)
}

// Day truncates a timestamp to its UTC calendar day. All trade dates
// flow through this so map keys and DB dates compare equal.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats a trade date the way the provider spells dates.
func DayKey(t time.Time) string {
	return t.Format("20060102")
}
