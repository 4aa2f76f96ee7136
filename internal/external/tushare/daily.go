package tushare

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
)

const (
	dailyFields     = "ts_code,trade_date,open,high,low,close,vol,amount"
	adjFactorFields = "ts_code,trade_date,adj_factor"
)

// DailyByDate returns the full market cross-section for one trading
// day, with that day's adjustment factors merged in. An instrument
// without a factor row keeps factor 1.
func (c *Client) DailyByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	key := contracts.DayKey(date)

	rs, err := c.call(ctx, "daily", map[string]string{"trade_date": key}, dailyFields)
	if err != nil {
		return nil, fmt.Errorf("daily %s: %w", key, err)
	}

	factors := map[string]float64{}
	frs, err := c.call(ctx, "adj_factor", map[string]string{"trade_date": key}, adjFactorFields)
	if err != nil {
		return nil, fmt.Errorf("adj_factor %s: %w", key, err)
	}
	for i := 0; i < frs.len(); i++ {
		factors[frs.str(i, "ts_code")] = frs.float(i, "adj_factor")
	}

	bars, err := c.decodeBars(rs)
	if err != nil {
		return nil, err
	}
	for i := range bars {
		if f, ok := factors[bars[i].Code]; ok && f > 0 {
			bars[i].AdjFactor = f
		} else {
			bars[i].AdjFactor = 1
		}
	}

	return bars, nil
}

// DailyByCode returns one instrument's bars in [from, to] ascending,
// with adjustment factors merged by date.
func (c *Client) DailyByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	params := map[string]string{
		"ts_code":    code,
		"start_date": contracts.DayKey(from),
		"end_date":   contracts.DayKey(to),
	}

	rs, err := c.call(ctx, "daily", params, dailyFields)
	if err != nil {
		return nil, fmt.Errorf("daily %s: %w", code, err)
	}

	factors := map[string]float64{}
	frs, err := c.call(ctx, "adj_factor", params, adjFactorFields)
	if err != nil {
		return nil, fmt.Errorf("adj_factor %s: %w", code, err)
	}
	for i := 0; i < frs.len(); i++ {
		factors[frs.str(i, "trade_date")] = frs.float(i, "adj_factor")
	}

	bars, err := c.decodeBars(rs)
	if err != nil {
		return nil, err
	}
	for i := range bars {
		if f, ok := factors[contracts.DayKey(bars[i].TradeDate)]; ok && f > 0 {
			bars[i].AdjFactor = f
		}
	}

	// The provider returns newest-first.
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].TradeDate.Before(bars[j].TradeDate)
	})

	return bars, nil
}

func (c *Client) decodeBars(rs *resultSet) ([]contracts.PriceBar, error) {
	bars := make([]contracts.PriceBar, 0, rs.len())
	for i := 0; i < rs.len(); i++ {
		d, err := time.Parse("20060102", rs.str(i, "trade_date"))
		if err != nil {
			return nil, fmt.Errorf("parse trade_date %q: %w", rs.str(i, "trade_date"), err)
		}

		bars = append(bars, contracts.PriceBar{
			Code:      rs.str(i, "ts_code"),
			TradeDate: contracts.Day(d),
			Open:      rs.float(i, "open"),
			High:      rs.float(i, "high"),
			Low:       rs.float(i, "low"),
			Close:     rs.float(i, "close"),
			Volume:    rs.float(i, "vol"),
			Amount:    rs.float(i, "amount"),
		})
	}
	return bars, nil
}
