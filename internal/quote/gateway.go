package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"tradesim/internal/models"
	"tradesim/internal/money"
)

// ErrLookupFailed covers every way a quote can fail: unknown symbol,
// network error, bad payload or a non-positive price.
var ErrLookupFailed = errors.New("quote lookup failed")

const userAgent = "tradesim/1.0"

// Gateway resolves a ticker symbol to its current quote.
type Gateway interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// YahooGateway reads the Yahoo Finance v8 chart endpoint. Each call goes to
// the network; nothing is cached and nothing is retried.
type YahooGateway struct {
	cli     *http.Client
	baseURL string
}

func NewYahooGateway(baseURL string, timeout time.Duration) *YahooGateway {
	return &YahooGateway{
		cli:     &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (g *YahooGateway) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return models.Quote{}, fmt.Errorf("%w: empty symbol", ErrLookupFailed)
	}

	addr := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", g.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.cli.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("%w: %s http %d", ErrLookupFailed, symbol, resp.StatusCode)
	}

	var jobj any
	if err := json.NewDecoder(resp.Body).Decode(&jobj); err != nil {
		return models.Quote{}, fmt.Errorf("%w: decode %s: %v", ErrLookupFailed, symbol, err)
	}
	return parseChart(symbol, jobj)
}

func parseChart(symbol string, jobj any) (models.Quote, error) {
	raw, err := jsonpath.Get("$.chart.result[0].meta", jobj)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %s has no result", ErrLookupFailed, symbol)
	}
	meta, ok := raw.(map[string]any)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s meta is %T", ErrLookupFailed, symbol, raw)
	}

	price, ok := meta["regularMarketPrice"].(float64)
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s has no price", ErrLookupFailed, symbol)
	}
	minor := money.FromDecimal(decimal.NewFromFloat(price))
	if minor <= 0 {
		return models.Quote{}, fmt.Errorf("%w: %s price %v", ErrLookupFailed, symbol, price)
	}

	if s, ok := meta["symbol"].(string); ok && s != "" {
		symbol = NormalizeSymbol(s)
	}
	return models.Quote{
		Symbol: symbol,
		Name:   displayName(meta, symbol),
		Price:  minor,
	}, nil
}

// longName, then shortName, then the symbol itself.
func displayName(meta map[string]any, symbol string) string {
	for _, key := range []string{"longName", "shortName"} {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return symbol
}
