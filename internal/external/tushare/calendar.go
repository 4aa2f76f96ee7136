package tushare

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
)

// TradingDays returns the ordered open trading days in [from, to],
// taken from the exchange calendar.
func (c *Client) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	params := map[string]string{
		"exchange":   "SSE",
		"start_date": contracts.DayKey(from),
		"end_date":   contracts.DayKey(to),
		"is_open":    "1",
	}

	rs, err := c.call(ctx, "trade_cal", params, "cal_date")
	if err != nil {
		return nil, fmt.Errorf("trade_cal: %w", err)
	}

	days := make([]time.Time, 0, rs.len())
	for i := 0; i < rs.len(); i++ {
		d, err := time.Parse("20060102", rs.str(i, "cal_date"))
		if err != nil {
			return nil, fmt.Errorf("parse cal_date %q: %w", rs.str(i, "cal_date"), err)
		}
		days = append(days, contracts.Day(d))
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return days, nil
}
