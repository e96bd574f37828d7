package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/config"
	"github.com/GeneralMagicio/QAcc-BE-sub000/internal/logger"
	"github.com/cenkalti/backoff/v5"
)

// ErrNoPriceData 查询区间内没有价格点
var ErrNoPriceData = errors.New("no price data")

// 默认的代币符号到 CoinGecko coin id 映射
var defaultCoinIds = map[string]string{
	"POL":   "polygon-ecosystem-token",
	"MATIC": "matic-network",
	"ETH":   "ethereum",
	"USDC":  "usd-coin",
}

// searchWindow 在目标时间前后取价的区间半径
const searchWindow = 30 * time.Minute

// Client CoinGecko 历史价格客户端
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries uint
	httpClient *http.Client
	coinIds    map[string]string
}

// NewClient 创建价格客户端
func NewClient(cfg config.PriceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		coinIds:    defaultCoinIds,
	}
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// GetTokenPriceAtDate 返回最接近 date 的美元价格
func (c *Client) GetTokenPriceAtDate(ctx context.Context, symbol string, date time.Time) (float64, error) {
	coinId, ok := c.coinIds[strings.ToUpper(symbol)]
	if !ok {
		coinId = strings.ToLower(symbol)
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("from", fmt.Sprintf("%d", date.Add(-searchWindow).Unix()))
	query.Set("to", fmt.Sprintf("%d", date.Add(searchWindow).Unix()))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.baseURL, url.PathEscape(coinId), query.Encode())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	chart, err := backoff.Retry(ctx, func() (*marketChartResponse, error) {
		return c.fetch(ctx, endpoint)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxRetries))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s price: %w", symbol, err)
	}

	price, ok := closestPrice(chart.Prices, date)
	if !ok {
		return 0, fmt.Errorf("%s at %s: %w", symbol, date.Format(time.RFC3339), ErrNoPriceData)
	}
	logger.Debug("Fetched %s price %f at %s", symbol, price, date.Format(time.RFC3339))
	return price, nil
}

// fetch 执行一次请求；4xx（429 除外）不重试
func (c *Client) fetch(ctx context.Context, endpoint string) (*marketChartResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("price api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		logger.Warn("Retrying price request: %v", err)
		return nil, err
	}

	var chart marketChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode price response: %w", err))
	}
	return &chart, nil
}

// closestPrice 价格点格式为 [毫秒时间戳, 价格]
func closestPrice(points [][2]float64, date time.Time) (float64, bool) {
	target := float64(date.UnixMilli())
	best, bestDiff := 0.0, math.Inf(1)
	for _, p := range points {
		if diff := math.Abs(p[0] - target); diff < bestDiff {
			best, bestDiff = p[1], diff
		}
	}
	return best, !math.IsInf(bestDiff, 1)
}
