package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketwatch/internal/models"
)

// BinanceClient reads ticker data from a Binance-style REST API. The
// current price comes from /api/v3/ticker/price, everything else from the
// 24h statistics endpoint.
type BinanceClient struct {
	baseURL string
	client  *http.Client
}

// NewBinanceClient builds a client against baseURL with the given request
// timeout.
func NewBinanceClient(baseURL string, timeout time.Duration) *BinanceClient {
	return &BinanceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
}

// GetReading fetches the requested metric for symbol. The market and
// provider fields identify the feed; this client only serves cex/binance
// style feeds and ignores them beyond that.
func (c *BinanceClient) GetReading(ctx context.Context, market, provider, symbol string, metric models.Metric) (float64, error) {
	switch metric {
	case models.MetricPrice:
		var t tickerPrice
		if err := c.get(ctx, "/api/v3/ticker/price", symbol, &t); err != nil {
			return 0, &FetchError{Symbol: symbol, Metric: metric, Err: err}
		}
		return parseField(symbol, metric, t.Price)
	case models.MetricPriceChangePercent, models.MetricVolume, models.MetricHigh24h, models.MetricLow24h:
		var t ticker24h
		if err := c.get(ctx, "/api/v3/ticker/24hr", symbol, &t); err != nil {
			return 0, &FetchError{Symbol: symbol, Metric: metric, Err: err}
		}
		switch metric {
		case models.MetricPriceChangePercent:
			return parseField(symbol, metric, t.PriceChangePercent)
		case models.MetricVolume:
			return parseField(symbol, metric, t.Volume)
		case models.MetricHigh24h:
			return parseField(symbol, metric, t.HighPrice)
		default:
			return parseField(symbol, metric, t.LowPrice)
		}
	default:
		return 0, &FetchError{Symbol: symbol, Metric: metric, Err: fmt.Errorf("unsupported metric")}
	}
}

func (c *BinanceClient) get(ctx context.Context, path, symbol string, out interface{}) error {
	u := fmt.Sprintf("%s%s?symbol=%s", c.baseURL, path, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseField(symbol string, metric models.Metric, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &FetchError{Symbol: symbol, Metric: metric, Err: fmt.Errorf("parse %q: %w", raw, err)}
	}
	return v, nil
}
