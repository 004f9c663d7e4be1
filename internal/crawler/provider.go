// Package crawler fetches websites and drives the crawl-to-index pipeline.
package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Page is one crawled page.
type Page struct {
	URL     string
	RawHTML string
}

// Options controls one crawl job.
type Options struct {
	PageLimit  int
	SettleWait time.Duration // wait after load for lazy content to render
}

// Provider fetches pages for a site. A provider may partially fail — return
// fewer pages than the limit — without failing the whole call; zero pages is
// the caller's error condition.
type Provider interface {
	Crawl(ctx context.Context, startURL string, opts Options) ([]Page, error)
}

// ChromedpProvider crawls with a headless Chrome so JavaScript-rendered
// images are present in the captured HTML. Pages are discovered
// breadth-first through same-host links starting from the seed URL.
type ChromedpProvider struct {
	pageTimeout time.Duration
}

// NewChromedpProvider creates a provider with the given per-page timeout.
func NewChromedpProvider(pageTimeout time.Duration) *ChromedpProvider {
	return &ChromedpProvider{pageTimeout: pageTimeout}
}

func (p *ChromedpProvider) Crawl(ctx context.Context, startURL string, opts Options) ([]Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(`Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36`),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	seed, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}

	queue := []string{startURL}
	visited := map[string]bool{startURL: true}
	var pages []Page

	for len(queue) > 0 && len(pages) < opts.PageLimit {
		pageURL := queue[0]
		queue = queue[1:]

		html, err := p.fetchPage(browserCtx, pageURL, opts.SettleWait)
		if err != nil {
			// A single unreachable page doesn't fail the crawl.
			slog.Warn("page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}
		pages = append(pages, Page{URL: pageURL, RawHTML: html})

		for _, link := range sameHostLinks(html, seed) {
			if !visited[link] {
				visited[link] = true
				queue = append(queue, link)
			}
		}
	}

	return pages, nil
}

func (p *ChromedpProvider) fetchPage(browserCtx context.Context, pageURL string, settleWait time.Duration) (string, error) {
	taskCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, p.pageTimeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(settleWait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// sameHostLinks extracts absolute same-host anchor targets from a page.
func sameHostLinks(html string, seed *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := seed.ResolveReference(ref)
		if abs.Host != seed.Host {
			return
		}
		abs.Fragment = ""
		links = append(links, abs.String())
	})
	return links
}
