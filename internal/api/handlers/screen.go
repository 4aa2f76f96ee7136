package handlers

import (
	"net/http"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/internal/screen"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// ScreenHandler runs the quality-momentum screen on demand. Results
// are computed per request and never persisted, so this endpoint can
// be slow on a cold store.
type ScreenHandler struct {
	screener *screen.Screener
	logger   *logger.Logger
}

func NewScreenHandler(screener *screen.Screener, log *logger.Logger) *ScreenHandler {
	return &ScreenHandler{screener: screener, logger: log}
}

type candidateItem struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Industry     string  `json:"industry"`
	TradeDate    string  `json:"trade_date"`
	LastClose    float64 `json:"last_close"`
	MarketValue  float64 `json:"market_value"`
	RecentReturn float64 `json:"recent_return"`
	ReboundRatio float64 `json:"rebound_ratio"`
	TrendSlope   float64 `json:"trend_slope"`
	Volatility   float64 `json:"volatility"`
}

// GetCandidates screens the universe as of one date.
// GET /api/v1/screen?date=20250401
func (h *ScreenHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date := contracts.Day(time.Now())
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		if date, err = parseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, want YYYYMMDD")
			return
		}
	}

	candidates, err := h.screener.Run(ctx, date)
	if err != nil {
		h.logger.WithError(err).Error("screen run failed")
		writeError(w, http.StatusInternalServerError, "screen failed")
		return
	}

	items := make([]candidateItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, candidateItem{
			Code:         c.Code,
			Name:         c.Name,
			Industry:     c.Industry,
			TradeDate:    contracts.DayKey(c.TradeDate),
			LastClose:    c.LastClose,
			MarketValue:  c.MarketValue,
			RecentReturn: c.RecentReturn,
			ReboundRatio: c.ReboundRatio,
			TrendSlope:   c.TrendSlope,
			Volatility:   c.Volatility,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":       contracts.DayKey(date),
		"count":      len(items),
		"candidates": items,
	})
}
