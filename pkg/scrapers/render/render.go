// Package render loads pages in headless Chrome for retailers whose product details only exist after
// client-side rendering.
package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"shelf-sync/pkg/scrapers/pagetext"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

type Renderer struct {
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to wait after the body is ready for late scripts to fill in prices.
	Settle time.Duration
	// DebugDir receives a screenshot and the HTML of pages that fail to render. Empty disables it.
	DebugDir string
}

func NewRenderer() *Renderer {
	return &Renderer{
		UserAgent: DefaultUserAgent,
		Timeout:   45 * time.Second,
		Settle:    2 * time.Second,
	}
}

// Page is a rendered document.
type Page struct {
	URL    string
	Tokens []string
	Doc    *goquery.Document
}

func (r *Renderer) Render(ctx context.Context, url string) (*Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(browserCtx, r.Timeout)
	defer cancelRun()

	log.Printf("[RENDER] Navigating to %s", url)

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Sleep(r.Settle),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		r.dumpDebug(browserCtx, url)
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	return Parse(url, html)
}

// Parse turns rendered HTML into a Page.
func Parse(url, html string) (*Page, error) {
	tokens, doc, err := pagetext.FromHTML(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return &Page{URL: url, Tokens: tokens, Doc: doc}, nil
}

func (r *Renderer) dumpDebug(ctx context.Context, url string) {
	if r.DebugDir == "" {
		return
	}
	debugCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	name := strings.NewReplacer("/", "_", ":", "_", "?", "_").Replace(url)

	var buf []byte
	if err := chromedp.Run(debugCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		log.Printf("[RENDER] Failed to capture screenshot: %v", err)
	} else if err := os.WriteFile(filepath.Join(r.DebugDir, name+".png"), buf, 0644); err != nil {
		log.Printf("[RENDER] Failed to write screenshot: %v", err)
	}

	var html string
	if err := chromedp.Run(debugCtx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		log.Printf("[RENDER] Failed to capture HTML: %v", err)
	} else if err := os.WriteFile(filepath.Join(r.DebugDir, name+".html"), []byte(html), 0644); err != nil {
		log.Printf("[RENDER] Failed to write HTML: %v", err)
	}
}
