package tushare

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
)

// Instruments returns the current listed-instrument universe.
func (c *Client) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	params := map[string]string{
		"exchange":    "",
		"list_status": "L",
	}

	rs, err := c.call(ctx, "stock_basic", params, "ts_code,name,industry,market,list_date")
	if err != nil {
		return nil, fmt.Errorf("stock_basic: %w", err)
	}

	instruments := make([]contracts.Instrument, 0, rs.len())
	for i := 0; i < rs.len(); i++ {
		inst := contracts.Instrument{
			Code:     rs.str(i, "ts_code"),
			Name:     rs.str(i, "name"),
			Industry: rs.str(i, "industry"),
			Market:   rs.str(i, "market"),
		}
		if d, err := time.Parse("20060102", rs.str(i, "list_date")); err == nil {
			inst.ListDate = contracts.Day(d)
		}
		instruments = append(instruments, inst)
	}

	return instruments, nil
}

// MarketValues returns total market value by code for one day, in the
// provider's 万元 unit. One cross-sectional call per evaluation date.
func (c *Client) MarketValues(ctx context.Context, date time.Time) (map[string]float64, error) {
	params := map[string]string{"trade_date": contracts.DayKey(date)}

	rs, err := c.call(ctx, "daily_basic", params, "ts_code,total_mv")
	if err != nil {
		return nil, fmt.Errorf("daily_basic %s: %w", contracts.DayKey(date), err)
	}

	values := make(map[string]float64, rs.len())
	for i := 0; i < rs.len(); i++ {
		values[rs.str(i, "ts_code")] = rs.float(i, "total_mv")
	}

	return values, nil
}
