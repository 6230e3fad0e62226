package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeRenderer renders client-side pages in a shared headless browser.
// The browser starts on first use.
type ChromeRenderer struct {
	timeout time.Duration
	wait    time.Duration

	once       sync.Once
	browserCtx context.Context
	cancel     context.CancelFunc
}

// NewChromeRenderer creates a renderer with a per-page timeout and a settle
// delay after the body is ready.
func NewChromeRenderer(timeout, wait time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{timeout: timeout, wait: wait}
}

func (r *ChromeRenderer) start() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	r.browserCtx = browserCtx
	r.cancel = func() {
		browserCancel()
		allocCancel()
	}
}

// Render navigates to url and returns the outer HTML of the document.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	r.once.Do(r.start)

	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	defer cancel()
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, r.timeout)
	defer timeoutCancel()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, timeoutCancel)
	defer stop()

	tasks := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if r.wait > 0 {
		tasks = append(tasks, chromedp.Sleep(r.wait))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return "", eris.Wrapf(err, "fetcher: render %s", url)
	}
	return html, nil
}

// Close shuts the browser down if it was started.
func (r *ChromeRenderer) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}
