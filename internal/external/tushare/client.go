package tushare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/httputil"
	"github.com/zhaoqi/breadth/pkg/logger"
	"github.com/zhaoqi/breadth/pkg/retry"
)

// Client speaks the tushare pro HTTP API: every endpoint is a POST of
// {api_name, token, params, fields} returning a column/row table. The
// token comes from injected config only. Implements contracts.MarketData.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
	limiter    *rate.Limiter
	policy     retry.Policy
}

// NewClient creates a new tushare client. The pacer keeps this process
// under the provider's per-minute quota; a shared Redis limiter can be
// attached to the HTTP client when several processes share one token.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	perMin := cfg.Tushare.ReqPerMin
	if perMin <= 0 {
		perMin = 190
	}

	policy := retry.Policy{
		MaxAttempts:   cfg.Tushare.MaxRetries,
		InitialDelay:  2 * time.Second,
		MaxDelay:      10 * time.Second,
		Cooldown:      cfg.Tushare.Cooldown,
		IsRateLimited: IsRateLimited,
	}

	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    cfg.Tushare.BaseURL,
		token:      cfg.Tushare.Token,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 5),
		policy:     policy,
	}
}

// APIError is a non-zero reply code from the provider.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare error %d: %s", e.Code, e.Msg)
}

// IsRateLimited reports whether an error is the provider's per-minute
// quota reply. These trigger a cooldown instead of consuming retries.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.Code == 40203 || strings.Contains(apiErr.Msg, "每分钟最多访问该接口")
}

type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields,omitempty"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

// resultSet is a decoded column/row table with field lookup.
type resultSet struct {
	index map[string]int
	items [][]interface{}
}

func (rs *resultSet) len() int { return len(rs.items) }

func (rs *resultSet) str(row int, field string) string {
	col, ok := rs.index[field]
	if !ok || col >= len(rs.items[row]) {
		return ""
	}
	switch v := rs.items[row][col].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (rs *resultSet) float(row int, field string) float64 {
	col, ok := rs.index[field]
	if !ok || col >= len(rs.items[row]) {
		return 0
	}
	switch v := rs.items[row][col].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// call performs one provider request under the shared retry policy.
func (c *Client) call(ctx context.Context, apiName string, params map[string]string, fields string) (*resultSet, error) {
	req := apiRequest{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	}

	var rs *resultSet
	err := c.policy.Do(ctx, c.logger, apiName, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.httpClient.PostJSON(ctx, c.baseURL, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		var decoded apiResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("decode %s response: %w", apiName, err)
		}

		if decoded.Code != 0 {
			return &APIError{Code: decoded.Code, Msg: decoded.Msg}
		}

		index := make(map[string]int, len(decoded.Data.Fields))
		for i, f := range decoded.Data.Fields {
			index[f] = i
		}
		rs = &resultSet{index: index, items: decoded.Data.Items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rs, nil
}
