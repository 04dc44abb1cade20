package finnhub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PaperDesk/internal/domain/models"
	drepo "PaperDesk/internal/domain/repository"
	xhttp "PaperDesk/pkg/http"

	"github.com/shopspring/decimal"
)

// REST is a rate-limited client for the Finnhub news and quote endpoints.
type REST struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

// NewREST builds a client paced at rps requests per second with bounded retry.
func NewREST(baseURL, apiKey string, rps float64, timeout time.Duration, retries int) *REST {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(retries+1, 200*time.Millisecond, 3*time.Second),
			xhttp.WithRateLimit(rps, burst),
		),
	}
}

var _ drepo.NewsProvider = (*REST)(nil)

type newsItem struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// CompanyNews fetches /company-news for symbol over [from, to] (day granularity).
func (c *REST) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.Article, error) {
	var items []newsItem
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/company-news",
		QueryParams: map[string][]string{
			"symbol": {strings.ToUpper(symbol)},
			"from":   {from.UTC().Format("2006-01-02")},
			"to":     {to.UTC().Format("2006-01-02")},
			"token":  {c.apiKey},
		},
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("finnhub company-news %s: %w", symbol, err)
	}

	out := make([]models.Article, 0, len(items))
	for _, it := range items {
		out = append(out, models.Article{
			Symbols:     splitRelated(it.Related),
			Headline:    it.Headline,
			Body:        it.Summary,
			Source:      it.Source,
			URL:         it.URL,
			PublishedAt: time.Unix(it.Datetime, 0).UTC(),
		})
	}
	return out, nil
}

type quote struct {
	Current float64 `json:"c"`
	T       int64   `json:"t"`
}

// Quote fetches the current price from /quote. A zero price means unknown symbol.
func (c *REST) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var q quote
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/quote",
		QueryParams: map[string][]string{
			"symbol": {strings.ToUpper(symbol)},
			"token":  {c.apiKey},
		},
	}, &q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if q.Current <= 0 {
		return decimal.Zero, fmt.Errorf("finnhub quote %s: %w", symbol, models.ErrPriceUnavailable)
	}
	return decimal.NewFromFloat(q.Current), nil
}

func splitRelated(related string) []string {
	if related == "" {
		return nil
	}
	parts := strings.Split(related, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
