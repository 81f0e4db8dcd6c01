package render

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/go-scripts/siteextract/internal/config"
)

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
	"headless_shell",
}

// ChromeRenderer drives a shared headless Chrome, one tab per Render call.
type ChromeRenderer struct {
	cfg      config.RenderConfig
	logger   *log.Logger
	lookPath func(string) (string, error)

	once          sync.Once
	startErr      error
	failed        atomic.Bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeRenderer creates a renderer. The browser is started lazily on
// the first Render call.
func NewChromeRenderer(cfg config.RenderConfig, logger *log.Logger) *ChromeRenderer {
	if logger == nil {
		logger = log.Default()
	}
	return &ChromeRenderer{
		cfg:      cfg,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

func (r *ChromeRenderer) execPath() (string, bool) {
	if r.cfg.DisableRender {
		return "", false
	}
	if r.cfg.ChromePath != "" {
		p, err := r.lookPath(r.cfg.ChromePath)
		return p, err == nil
	}
	for _, name := range chromeCandidates {
		if p, err := r.lookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// Available reports whether a browser binary can be found and, if one was
// already started, that it started cleanly.
func (r *ChromeRenderer) Available() bool {
	_, ok := r.execPath()
	return ok && !r.failed.Load()
}

func (r *ChromeRenderer) start() error {
	r.once.Do(func() {
		path, ok := r.execPath()
		if !ok {
			r.startErr = ErrRendererUnavailable
			r.failed.Store(true)
			return
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(path),
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Headless,
			chromedp.WindowSize(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
			chromedp.UserAgent(r.cfg.UserAgent),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(r.logger.Debugf))

		// An empty Run starts the browser so later tabs share it.
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			r.startErr = fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
			r.failed.Store(true)
			return
		}

		r.allocCancel = allocCancel
		r.browserCtx = browserCtx
		r.browserCancel = browserCancel
		r.logger.Debug("headless browser started", "path", path)
	})
	return r.startErr
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Render loads req.URL in a new tab.
func (r *ChromeRenderer) Render(ctx context.Context, req Request) (*Response, error) {
	if err := r.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	timeoutCtx, cancel := context.WithTimeout(tabCtx, req.Timeout)
	defer cancel()

	headers := network.Headers{}
	for k, v := range req.Headers {
		headers[k] = v
	}

	setup := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		emulation.SetDeviceMetricsOverride(int64(req.Viewport.Width), int64(req.Viewport.Height), 1, false),
	}
	if req.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(req.UserAgent))
	}
	if req.InitScript != "" {
		script := req.InitScript
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	for _, c := range req.Cookies {
		setup = append(setup, network.SetCookie(c.Name, c.Value).WithURL(req.URL))
	}
	if err := chromedp.Run(timeoutCtx, setup); err != nil {
		return nil, fmt.Errorf("prepare tab: %w", r.classify(ctx, err))
	}

	resp, err := chromedp.RunResponse(timeoutCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", r.classify(ctx, err))
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if cerr := classifyError(nil, status); cerr != nil {
		return nil, cerr
	}

	if err := chromedp.Run(timeoutCtx, chromedp.WaitReady("body")); err != nil {
		return nil, fmt.Errorf("wait for body: %w", r.classify(ctx, err))
	}

	if req.Script != "" {
		var found bool
		if err := chromedp.Run(timeoutCtx, chromedp.Evaluate(req.Script, &found, awaitPromise)); err != nil {
			// Continue anyway, the page may still have usable content
			r.logger.Debug("page script failed", "url", req.URL, "err", err)
		} else if !found {
			r.logger.Debug("wait keywords not seen", "url", req.URL)
		}
	}
	if req.Settle > 0 {
		if err := chromedp.Run(timeoutCtx, chromedp.Sleep(req.Settle)); err != nil {
			return nil, fmt.Errorf("settle: %w", r.classify(ctx, err))
		}
	}

	var title, document string
	var links []string
	if err := chromedp.Run(timeoutCtx, chromedp.Title(&title)); err != nil {
		r.logger.Debug("error getting title", "url", req.URL, "err", err)
	}
	if err := chromedp.Run(timeoutCtx, chromedp.OuterHTML("html", &document)); err != nil {
		return nil, fmt.Errorf("capture html: %w", r.classify(ctx, err))
	}
	if err := chromedp.Run(timeoutCtx, chromedp.Evaluate(linksJS, &links)); err != nil {
		r.logger.Debug("error extracting links", "url", req.URL, "err", err)
		links = nil
	}

	return &Response{HTML: document, Title: title, Links: links, Status: status}, nil
}

// classify keeps caller cancellation distinct from the page timeout.
func (r *ChromeRenderer) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return classifyError(err, 0)
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}
