package fetcher

import (
	"context"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/sells-group/cashback-intel/internal/model"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultMaxBody   = 2 << 20
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Renderer     Renderer
}

// HTTPFetcher fetches pages and probes URLs over a shared resty client.
type HTTPFetcher struct {
	client   *resty.Client
	maxBody  int64
	renderer Renderer
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}

	client := resty.New()
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(opts.Timeout)

	return &HTTPFetcher{
		client:   client,
		maxBody:  opts.MaxBodyBytes,
		renderer: opts.Renderer,
	}
}

// Fetch performs a GET and returns the decoded body. Non-2xx statuses are
// returned as pages, not errors; only transport failures produce an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*model.FetchedPage, error) {
	start := time.Now()

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", url)
	}
	raw := resp.RawBody()
	defer raw.Close() //nolint:errcheck

	contentType := resp.Header().Get("Content-Type")
	reader, err := charset.NewReader(io.LimitReader(raw, f.maxBody), contentType)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode charset %s", url)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body %s", url)
	}

	page := &model.FetchedPage{
		URL:         url,
		FinalURL:    url,
		StatusCode:  resp.StatusCode(),
		ContentType: contentType,
		Body:        string(body),
	}
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		page.FinalURL = resp.RawResponse.Request.URL.String()
	}

	if blocked, kind := DetectBlock(page.StatusCode, resp.Header(), body); blocked {
		page.Block = string(kind)
		if kind == BlockJSShell && f.renderer != nil {
			html, rerr := f.renderer.Render(ctx, url)
			if rerr != nil {
				zap.L().Debug("fetcher: render failed", zap.String("url", url), zap.Error(rerr))
			} else {
				page.Body = html
				page.Rendered = true
				page.Block = ""
			}
		}
	}

	page.Duration = time.Since(start)
	return page, nil
}

// Probe issues a HEAD request. A 2xx final status is live.
func (f *HTTPFetcher) Probe(ctx context.Context, url string) (*model.ProbeResult, error) {
	resp, err := f.client.R().SetContext(ctx).Head(url)
	if err != nil {
		return &model.ProbeResult{URL: url, Error: err.Error()}, eris.Wrapf(err, "fetcher: head %s", url)
	}
	code := resp.StatusCode()
	return &model.ProbeResult{
		URL:        url,
		StatusCode: code,
		Live:       code >= 200 && code < 300,
	}, nil
}
