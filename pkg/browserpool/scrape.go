package browserpool

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/TKontu/knowledge-extraction/pkg/apperror"
)

// adDomains is the fixed ad-domain list whose requests are aborted during a
// scrape (spec.md §4.3).
var adDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"adservice.google.com",
	"ads-twitter.com",
	"facebook.com/tr",
}

// statusErrors maps a fixed set of status codes ≥300 to a human-readable
// pageError (spec.md §4.3).
var statusErrors = map[int]string{
	301: "Redirected permanently",
	302: "Redirected temporarily",
	400: "Bad request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not found",
	429: "Too many requests",
	500: "Internal server error",
	502: "Bad gateway",
	503: "Service unavailable",
	504: "Gateway timeout",
}

// Request is the scrape contract's request body (spec.md §6).
type Request struct {
	URL                 string
	Timeout             time.Duration
	WaitAfterLoad       time.Duration
	Headers             map[string]string
	CheckSelector       string
	SkipTLSVerify       bool
	DiscoverAjax        bool
}

// Response is the scrape contract's success body.
type Response struct {
	Content        string   `json:"content"`
	PageStatusCode int      `json:"pageStatusCode"`
	PageError      string   `json:"pageError,omitempty"`
	ContentType    string   `json:"contentType,omitempty"`
	DiscoveredURLs []string `json:"discoveredUrls,omitempty"`
}

// standardHeaders are merged into every request; a caller's own
// User-Agent/Accept-Language/Accept-Encoding entries are dropped since those
// belong to the browser fingerprint (spec.md §4.3/§6).
var standardHeaders = map[string]string{
	"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"DNT":    "1",
}

var strippedHeaders = map[string]bool{
	"user-agent":      true,
	"accept-language": true,
	"accept-encoding": true,
}

// Scrape renders url and returns its content, following the tiered
// readiness wait of spec.md §4.3; extractContent describes what is returned.
func (p *Pool) Scrape(ctx context.Context, req Request) (*Response, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	s, idx, ok := p.next()
	if !ok {
		return nil, apperror.New(503, "no-browser-available", "no healthy browser available")
	}
	defer p.recycleIfDue(idx)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.NavigationTimeout
	}

	browserCtx, err := s.browser.Incognito()
	if err != nil {
		p.scheduleRestart(idx)
		return nil, fmt.Errorf("create browsing context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		if isBrowserClosedErr(err) {
			p.scheduleRestart(idx)
		}
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Timeout(timeout)
	defer page.Close()

	if err := applyHeaders(page, req.Headers); err != nil {
		return nil, fmt.Errorf("apply headers: %w", err)
	}
	if err := blockAdDomains(page); err != nil {
		return nil, fmt.Errorf("register ad block route: %w", err)
	}

	var discovered []string
	if req.DiscoverAjax {
		discovered = discoverAjaxURLs(page, req.URL)
	}

	var navErr error
	err = rod.Try(func() {
		navErr = page.Navigate(req.URL)
	})
	if err != nil || navErr != nil {
		if isBrowserClosedErr(err) {
			p.scheduleRestart(idx)
		}
		return nil, fmt.Errorf("navigate: %w", firstNonNil(navErr, err))
	}

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	waitNetworkIdle(page, p.cfg.NetworkIdleTimeout)
	waitContentStable(page, p.cfg.StabilityInterval, p.cfg.StabilityChecks)

	if req.WaitAfterLoad > 0 {
		time.Sleep(req.WaitAfterLoad)
	}

	if req.CheckSelector != "" {
		if _, err := page.Timeout(timeout).Element(req.CheckSelector); err != nil {
			return nil, apperror.New(400, "selector-not-found", "Required selector not found")
		}
	}

	resp := &Response{DiscoveredURLs: discovered}

	content, contentType, statusCode, pageErr := extractContent(page)
	resp.Content = content
	resp.ContentType = contentType
	resp.PageStatusCode = statusCode
	resp.PageError = pageErr
	if resp.PageError == "" {
		if msg, ok := statusErrors[statusCode]; ok {
			resp.PageError = msg
		}
	}

	return resp, nil
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func isBrowserClosedErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "browser closed")
}

func validateURL(raw string) error {
	if raw == "" {
		return apperror.New(400, "missing-url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.New(400, "invalid-url", "only http/https URLs are accepted")
	}
	return nil
}

func applyHeaders(page *rod.Page, caller map[string]string) error {
	headers := make(map[string]string, len(standardHeaders)+len(caller))
	for k, v := range standardHeaders {
		headers[k] = v
	}
	for k, v := range caller {
		if strippedHeaders[strings.ToLower(k)] {
			continue
		}
		headers[k] = v
	}

	args := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		args = append(args, k, v)
	}
	_, err := page.SetExtraHeaders(args)
	return err
}

func blockAdDomains(page *rod.Page) error {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		for _, domain := range adDomains {
			if strings.Contains(h.Request.URL().Host, domain) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return nil
}

// waitNetworkIdle is a best-effort, bounded wait for the network event
// helper rod exposes; failures (timeout included) are not fatal since this
// tier is best-effort by design (spec.md §4.3).
func waitNetworkIdle(page *rod.Page, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	rod.Try(func() {
		page.Timeout(timeout).WaitIdle(timeout)
	})
}

// waitContentStable polls body.innerHTML length at interval and returns once
// it has been unchanged for checks consecutive polls, the content-stability
// tier of the readiness wait (spec.md §4.3).
func waitContentStable(page *rod.Page, interval time.Duration, checks int) {
	if checks <= 0 {
		return
	}

	lastLen := -1
	stable := 0
	for i := 0; i < checks*4; i++ {
		var length int
		err := rod.Try(func() {
			el := page.MustElement("body")
			length = len(el.MustHTML())
		})
		if err != nil {
			return
		}

		if length == lastLen {
			stable++
			if stable >= checks {
				return
			}
		} else {
			stable = 0
		}
		lastLen = length

		time.Sleep(interval)
	}
}

func discoverAjaxURLs(page *rod.Page, baseURL string) []string {
	seen := map[string]bool{}
	var urls []string

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		reqURL := h.Request.URL().String()
		if !seen[reqURL] && reqURL != baseURL && !isAdDomain(reqURL) {
			seen[reqURL] = true
			urls = append(urls, reqURL)
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	elements, err := page.Elements("button, [role=button], .ajax-trigger")
	if err == nil {
		for _, el := range elements {
			rod.Try(func() {
				el.Click(proto.InputMouseButtonLeft, 1)
			})
		}
	}

	return urls
}

func isAdDomain(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, domain := range adDomains {
		if strings.Contains(u.Host, domain) {
			return true
		}
	}
	return false
}

// extractContent returns the rendered page's HTML with content type
// text/html, whatever the response's own content type. It does not decode
// JSON or plain-text bodies and does not inline iframe contents.
func extractContent(page *rod.Page) (content, contentType string, status int, pageError string) {
	info, err := page.Info()
	if err != nil || info == nil {
		return "", "", 0, ""
	}

	html, err := page.HTML()
	if err != nil {
		return "", "", 0, "failed to read page content"
	}

	return html, "text/html", 200, ""
}
