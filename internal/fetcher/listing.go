package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ryosukesatoh/weekly-report/internal/logging"
	"github.com/ryosukesatoh/weekly-report/internal/retry"
)

const (
	userAgent     = "weekly-report/1.0 (+https://github.com/ryosukesatoh/weekly-report)"
	acceptHeader  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	maxCandidates = 50
	headWorkers   = 4

	defaultPageTimeout     = 30 * time.Second
	defaultDownloadTimeout = 60 * time.Second
)

// Order decides which of several matching links is the latest report.
type Order string

const (
	// OrderFirst picks the first match in document order. Listing pages put the newest entry first.
	OrderFirst Order = "first"
	// OrderLexical picks the greatest URL. Works when file names embed year and week.
	OrderLexical Order = "lexical"
)

var (
	scriptPDFExpr = regexp.MustCompile(`(?i)["'](https?://[^"']*?\.pdf[^"']*|/[^"']*?\.pdf[^"']*)["']`)
	detailHints   = []string{"/publications", "/news"}
	anchorAttrs   = []string{"href", "data-asset-url", "data-file", "data-href"}
	resourceAttrs = []string{"href", "src", "content"}
)

// Options configures a ListingFetcher. Zero values get sensible defaults.
type Options struct {
	BaseURL       string
	Pattern       string
	Order         Order
	MaxBytes      int64
	Client        *http.Client
	Retry         *retry.Config
	DetailLimit   int
	CrawlInterval time.Duration
	// PageTimeout bounds each listing, detail page or HEAD request. Downloads
	// are bounded by the client timeout.
	PageTimeout time.Duration
	Logger      *slog.Logger
}

// ListingFetcher scrapes a listing page for document links.
type ListingFetcher struct {
	base        *url.URL
	pattern     *regexp.Regexp
	order       Order
	maxBytes    int64
	client      *http.Client
	retry       retry.Config
	detailLimit int
	limiter     *rate.Limiter
	pageTimeout time.Duration
	logger      *slog.Logger
}

// NewListingFetcher validates the base URL and link pattern.
func NewListingFetcher(opts Options) (*ListingFetcher, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("fetcher: invalid base URL %q: %w", opts.BaseURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("fetcher: invalid base URL %q: want absolute http(s) URL", opts.BaseURL)
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = `\.pdf`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("fetcher: invalid pattern %q: %w", opts.Pattern, err)
	}

	f := &ListingFetcher{
		base:        base,
		pattern:     re,
		order:       opts.Order,
		maxBytes:    opts.MaxBytes,
		client:      opts.Client,
		retry:       retry.DefaultConfig(),
		detailLimit: opts.DetailLimit,
		pageTimeout: opts.PageTimeout,
		logger:      logging.OrDefault(opts.Logger),
	}
	if f.order == "" {
		f.order = OrderFirst
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 25 << 20
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: defaultDownloadTimeout}
	}
	if opts.Retry != nil {
		f.retry = *opts.Retry
	}
	if f.pageTimeout <= 0 {
		f.pageTimeout = defaultPageTimeout
	}
	if f.detailLimit == 0 {
		f.detailLimit = 30
	}
	interval := opts.CrawlInterval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	f.limiter = rate.NewLimiter(rate.Every(interval), 1)

	return f, nil
}

// Latest returns the URL of the newest document on the listing page. When the
// listing itself links no document, same-site detail pages are searched.
func (f *ListingFetcher) Latest(ctx context.Context) (string, error) {
	f.logger.Debug("fetching listing page", "url", f.base.String())
	doc, err := f.fetchDocument(ctx, f.base.String())
	if err != nil {
		return "", fmt.Errorf("fetcher: listing page: %w", err)
	}

	if found := f.validate(ctx, f.candidates(doc, f.base)); len(found) > 0 {
		return f.pick(found), nil
	}

	details := f.detailLinks(doc)
	f.logger.Info("no document on listing page, searching detail pages", "pages", len(details))
	for _, u := range details {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("fetcher: %w", err)
		}
		page, err := url.Parse(u)
		if err != nil {
			continue
		}
		detail, err := f.fetchDocument(ctx, u)
		if err != nil {
			f.logger.Warn("detail page skipped", "url", u, "err", err)
			continue
		}
		if found := f.validate(ctx, f.candidates(detail, page)); len(found) > 0 {
			return f.pick(found), nil
		}
	}

	return "", ErrNoReport
}

// Download fetches reportURL, refusing bodies larger than the configured cap.
func (f *ListingFetcher) Download(ctx context.Context, reportURL string) (*Report, error) {
	if size, ok := f.headSize(ctx, reportURL); ok && size > f.maxBytes {
		return nil, fmt.Errorf("fetcher: report is %s, limit %s", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(f.maxBytes)))
	}

	var report *Report
	err := retry.WithBackoff(ctx, f.retry, func(ctx context.Context) error {
		resp, err := f.do(ctx, http.MethodGet, reportURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{URL: reportURL, Code: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > f.maxBytes {
			return retry.Permanent(fmt.Errorf("report exceeds %s", humanize.IBytes(uint64(f.maxBytes))))
		}

		report = &Report{
			URL:         reportURL,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher: download %s: %w", reportURL, err)
	}

	f.logger.Info("report downloaded", "url", reportURL, "size", humanize.IBytes(uint64(report.Size())))
	return report, nil
}

func (f *ListingFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := retry.WithBackoff(ctx, f.retry, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.pageTimeout)
		defer cancel()

		parsed, err := f.getDocument(attemptCtx, pageURL)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// Only this attempt timed out; leave the error retryable.
			return fmt.Errorf("get %s: no response within %s", pageURL, f.pageTimeout)
		}
		doc = parsed
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *ListingFetcher) getDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := f.do(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{URL: pageURL, Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse document: %w", err))
	}
	return doc, nil
}

func (f *ListingFetcher) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	return f.client.Do(req)
}

// candidates collects document links from anchors, resource tags and inline
// scripts, resolved against page and de-duplicated in document order.
func (f *ListingFetcher) candidates(doc *goquery.Document, page *url.URL) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(raw string) {
		if len(out) >= maxCandidates {
			return
		}
		resolved, ok := resolve(page, raw)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range anchorAttrs {
			if v, ok := s.Attr(attr); ok && f.pattern.MatchString(v) {
				add(v)
			}
		}
	})

	doc.Find("link, source, meta").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range resourceAttrs {
			if v, ok := s.Attr(attr); ok && f.pattern.MatchString(v) {
				add(v)
			}
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range scriptPDFExpr.FindAllStringSubmatch(s.Text(), -1) {
			if f.pattern.MatchString(m[1]) {
				add(m[1])
			}
		}
	})

	return out
}

// validate keeps candidates that look like PDFs, probing them with HEAD.
// The result preserves the input order.
func (f *ListingFetcher) validate(ctx context.Context, cands []string) []string {
	if len(cands) == 0 {
		return nil
	}

	keep := make([]bool, len(cands))
	var g errgroup.Group
	g.SetLimit(headWorkers)
	for i, u := range cands {
		g.Go(func() error {
			keep[i] = f.looksLikePDF(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for i, u := range cands {
		if keep[i] {
			out = append(out, u)
		} else {
			f.logger.Debug("candidate rejected", "url", u)
		}
	}
	return out
}

func (f *ListingFetcher) looksLikePDF(ctx context.Context, u string) bool {
	pdfPath := hasPDFPath(u)

	ctx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()
	resp, err := f.do(ctx, http.MethodHead, u)
	if err != nil {
		return pdfPath
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return pdfPath
	}
	return pdfPath || strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf")
}

func (f *ListingFetcher) headSize(ctx context.Context, u string) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.pageTimeout)
	defer cancel()
	resp, err := f.do(ctx, http.MethodHead, u)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

func (f *ListingFetcher) pick(found []string) string {
	if f.order == OrderLexical {
		best := found[0]
		for _, u := range found[1:] {
			if u > best {
				best = u
			}
		}
		return best
	}
	return found[0]
}

// detailLinks lists same-host publication or news pages linked from the listing.
func (f *ListingFetcher) detailLinks(doc *goquery.Document) []string {
	var out []string
	seen := map[string]struct{}{f.base.String(): {}}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if len(out) >= f.detailLimit {
			return
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, ok := resolve(f.base, href)
		if !ok {
			return
		}
		u, err := url.Parse(resolved)
		if err != nil || !strings.EqualFold(u.Host, f.base.Host) {
			return
		}
		if hasPDFPath(resolved) {
			return
		}
		path := strings.ToLower(u.Path)
		matched := false
		for _, hint := range detailHints {
			if strings.Contains(path, hint) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	})

	return out
}

// resolve turns raw into an absolute http(s) URL without fragment.
func resolve(page *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := page.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func hasPDFPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
