package breadth

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/config"
)

// fakePriceStore keeps bars in day-keyed maps, mirroring the Postgres
// repository's read shapes.
type fakePriceStore struct {
	bars       map[string]map[string]contracts.PriceBar
	pruneCalls []int
}

func newFakePriceStore() *fakePriceStore {
	return &fakePriceStore{bars: make(map[string]map[string]contracts.PriceBar)}
}

func (s *fakePriceStore) put(bar contracts.PriceBar) {
	key := contracts.DayKey(bar.TradeDate)
	if s.bars[key] == nil {
		s.bars[key] = make(map[string]contracts.PriceBar)
	}
	s.bars[key][bar.Code] = bar
}

func (s *fakePriceStore) UpsertBars(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	inserted := 0
	for _, b := range bars {
		key := contracts.DayKey(b.TradeDate)
		if _, ok := s.bars[key][b.Code]; ok {
			continue
		}
		s.put(b)
		inserted++
	}
	return inserted, nil
}

func (s *fakePriceStore) BarsByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	var out []contracts.PriceBar
	for _, cs := range s.bars {
		if b, ok := cs[code]; ok && !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func (s *fakePriceStore) BarsByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	var out []contracts.PriceBar
	for _, b := range s.bars[contracts.DayKey(date)] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *fakePriceStore) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for key := range s.bars {
		t, _ := time.Parse("20060102", key)
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found, nil
}

func (s *fakePriceStore) Prune(ctx context.Context, retainDays int) (int64, error) {
	s.pruneCalls = append(s.pruneCalls, retainDays)
	return 0, nil
}

// fakeBreadthStore records SaveStat calls and can fail on a chosen date.
type fakeBreadthStore struct {
	stats   map[string]contracts.BreadthStat
	saves   int
	failDay string
}

func newFakeBreadthStore() *fakeBreadthStore {
	return &fakeBreadthStore{stats: make(map[string]contracts.BreadthStat)}
}

func (s *fakeBreadthStore) SaveStat(ctx context.Context, stat contracts.BreadthStat) error {
	day := contracts.DayKey(stat.TradeDate)
	if day == s.failDay {
		return fmt.Errorf("injected save failure for %s", day)
	}
	s.stats[day+"/"+stat.Window] = stat
	s.saves++
	return nil
}

func (s *fakeBreadthStore) StatsRange(ctx context.Context, from, to time.Time, window string) ([]contracts.BreadthStat, error) {
	var out []contracts.BreadthStat
	for _, st := range s.stats {
		if st.Window == window && !st.TradeDate.Before(from) && !st.TradeDate.After(to) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

type fakeStatusStore struct {
	values map[string]string
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{values: make(map[string]string)}
}

func (s *fakeStatusStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStatusStore) Set(ctx context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

// fakeProvider serves a fixed calendar and bar universe.
type fakeProvider struct {
	calendar []time.Time
	bars     map[string]map[string]contracts.PriceBar
	fetches  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{bars: make(map[string]map[string]contracts.PriceBar)}
}

func (p *fakeProvider) put(bar contracts.PriceBar) {
	key := contracts.DayKey(bar.TradeDate)
	if p.bars[key] == nil {
		p.bars[key] = make(map[string]contracts.PriceBar)
	}
	p.bars[key][bar.Code] = bar
}

func (p *fakeProvider) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range p.calendar {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *fakeProvider) DailyByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	p.fetches++
	var out []contracts.PriceBar
	for _, b := range p.bars[contracts.DayKey(date)] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (p *fakeProvider) DailyByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	var out []contracts.PriceBar
	for _, cs := range p.bars {
		if b, ok := cs[code]; ok && !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func (p *fakeProvider) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	return nil, nil
}

func (p *fakeProvider) MarketValues(ctx context.Context, date time.Time) (map[string]float64, error) {
	return nil, nil
}

func day(i int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func bar(code string, d time.Time, close float64) contracts.PriceBar {
	return contracts.PriceBar{
		Code:      code,
		TradeDate: d,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		AdjFactor: 1,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Breadth: config.BreadthConfig{
			WindowWeeks:     []int{4},
			MinHistoryBars:  20,
			BackfillDays:    5,
			RetainTradeDays: 60,
		},
	}
}
