package handlers

import (
	"net/http"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// BreadthHandler serves persisted breadth statistics.
type BreadthHandler struct {
	stats  contracts.BreadthStore
	logger *logger.Logger
}

func NewBreadthHandler(stats contracts.BreadthStore, log *logger.Logger) *BreadthHandler {
	return &BreadthHandler{stats: stats, logger: log}
}

type breadthStatItem struct {
	TradeDate string `json:"trade_date"`
	Window    string `json:"window"`
	HighCount int    `json:"high_count"`
	LowCount  int    `json:"low_count"`
	NetHigh   int    `json:"net_high"`
}

// GetStats returns stats for one window over a date range.
// GET /api/v1/breadth?start=20250101&end=20250401&window=52w
func (h *BreadthHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	window := q.Get("window")
	if window == "" {
		window = "52w"
	}

	end := contracts.Day(time.Now())
	if s := q.Get("end"); s != "" {
		var err error
		if end, err = parseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date, want YYYYMMDD")
			return
		}
	}

	start := end.AddDate(0, -3, 0)
	if s := q.Get("start"); s != "" {
		var err error
		if start, err = parseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start date, want YYYYMMDD")
			return
		}
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start is after end")
		return
	}

	stats, err := h.stats.StatsRange(ctx, start, end, window)
	if err != nil {
		h.logger.WithError(err).Error("breadth stats query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	items := make([]breadthStatItem, 0, len(stats))
	for _, s := range stats {
		items = append(items, breadthStatItem{
			TradeDate: contracts.DayKey(s.TradeDate),
			Window:    s.Window,
			HighCount: s.HighCount,
			LowCount:  s.LowCount,
			NetHigh:   s.NetHigh,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window": window,
		"start":  contracts.DayKey(start),
		"end":    contracts.DayKey(end),
		"count":  len(items),
		"stats":  items,
	})
}
