package poller

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"PipeKit/internal/domain/models"
	pkghttp "PipeKit/pkg/http"
)

const symbolPlaceholder = "{symbol}"

type requester interface {
	SendAndParse(ctx context.Context, opts *pkghttp.RequestOptions, dest interface{}) error
}

// HTTPPoller GETs a URL template per symbol. {symbol} in the template is replaced;
// without it the symbol is sent as a query parameter.
type HTTPPoller struct {
	client   requester
	template string
	apiKey   string
	now      func() time.Time
}

// NewHTTPPoller creates a poller over client.
func NewHTTPPoller(client requester, template, apiKey string) *HTTPPoller {
	return &HTTPPoller{client: client, template: template, apiKey: apiKey, now: time.Now}
}

func (p *HTTPPoller) Poll(ctx context.Context, symbol string) (models.Batch, error) {
	opts := &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         p.template,
		QueryParams: map[string][]string{},
	}
	if strings.Contains(p.template, symbolPlaceholder) {
		opts.URL = strings.ReplaceAll(p.template, symbolPlaceholder, url.PathEscape(symbol))
	} else {
		opts.QueryParams["symbol"] = []string{symbol}
	}
	if p.apiKey != "" {
		opts.QueryParams["token"] = []string{p.apiKey}
	}

	var body []byte
	if err := p.client.SendAndParse(ctx, opts, &body); err != nil {
		return nil, fmt.Errorf("poll %s: %w", symbol, err)
	}
	batch, err := models.DecodeBatch(body)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", symbol, err)
	}
	stamp(batch, symbol, p.now())
	return batch, nil
}

func (p *HTTPPoller) Close() error { return nil }
