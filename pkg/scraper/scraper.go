package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"
	"github.com/xhad/linkpress/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	Timeout          time.Duration
	RateLimit        float64 // requests per second across all fetches
	Burst            int
	MaxBodyBytes     int64
	MinReadableChars int // below this, readability output is ignored
	Images           ImagePolicy
}

// Scraper fetches single pages and turns them into Sources. It is safe for
// concurrent use.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig, client *http.Client) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4
	}
	if config.Burst == 0 {
		config.Burst = 4
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 5 << 20
	}
	if config.MinReadableChars == 0 {
		config.MinReadableChars = 200
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
	}
}

func New(client *http.Client) *Scraper {
	return NewWithConfig(ScraperConfig{Images: DefaultImagePolicy()}, client)
}

// Fetch never fails: transport, status and parse problems yield a Source
// with StatusFailed, no text and the URL as its title.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) models.Source {
	logger := zerolog.Ctx(ctx)

	body, pageURL, err := s.get(ctx, rawURL)
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("fetch failed")
		return failedSource(rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("html parse failed")
		return failedSource(rawURL)
	}

	images := extractImages(doc, pageURL)
	src := models.Source{
		RequestedURL: rawURL,
		CanonicalURL: canonicalURL(doc, rawURL),
		Title:        extractTitle(doc, pageURL),
		Images:       FilterImages(images, s.config.Images),
		Status:       models.StatusOk,
	}
	// Text extraction removes nodes, so it runs last.
	src.CleanedText = s.extractText(body, doc, pageURL)

	logger.Debug().
		Str("url", rawURL).
		Str("canonical", src.CanonicalURL).
		Int("chars", len(src.CleanedText)).
		Int("images", len(src.Images)).
		Int("images_dropped", len(images)-len(src.Images)).
		Msg("fetched source")

	return src
}

func failedSource(rawURL string) models.Source {
	return models.Source{
		RequestedURL: rawURL,
		CanonicalURL: rawURL,
		Title:        rawURL,
		Status:       models.StatusFailed,
	}
}

func (s *Scraper) get(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	// Apply rate limiting. Time spent queued does not count against the
	// fetch timeout.
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	limited := io.LimitReader(resp.Body, s.config.MaxBodyBytes)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = limited
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	return body, resp.Request.URL, nil
}

// canonicalURL returns the head's canonical link when it is an absolute
// http(s) URL, otherwise fallback.
func canonicalURL(doc *goquery.Document, fallback string) string {
	canonical := fallback
	doc.Find("head link[rel]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		for _, token := range strings.Fields(strings.ToLower(rel)) {
			if token != "canonical" {
				continue
			}
			href := strings.TrimSpace(sel.AttrOr("href", ""))
			if u, err := url.Parse(href); err == nil && isWebURL(u) {
				canonical = u.String()
			}
			return false
		}
		return true
	})
	return canonical
}

func isWebURL(u *url.URL) bool {
	return u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// extractTitle prefers <title>, then the first h1-h3, then host and path.
func extractTitle(doc *goquery.Document, pageURL *url.URL) string {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if heading := collapse(doc.Find("h1, h2, h3").First().Text()); heading != "" {
		return heading
	}
	return hostPath(pageURL)
}

func hostPath(u *url.URL) string {
	return u.Host + strings.TrimSuffix(u.Path, "/")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var lazySourceAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

func extractImages(doc *goquery.Document, base *url.URL) []models.ImageRef {
	var images []models.ImageRef
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := imageSource(sel)
		if src == "" {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		alt := collapse(sel.AttrOr("alt", ""))
		if alt == "" {
			alt = fileName(abs)
		}
		images = append(images, models.ImageRef{
			URL:    abs.String(),
			Width:  dimension(sel.AttrOr("width", "")),
			Height: dimension(sel.AttrOr("height", "")),
			Alt:    alt,
		})
	})
	return images
}

// imageSource picks the first real URL, skipping data: placeholders that
// lazy loaders put in src.
func imageSource(sel *goquery.Selection) string {
	for _, attr := range lazySourceAttrs {
		v := strings.TrimSpace(sel.AttrOr(attr, ""))
		if v != "" && !strings.HasPrefix(strings.ToLower(v), "data:") {
			return v
		}
	}
	for _, attr := range []string{"srcset", "data-srcset"} {
		first := strings.TrimSpace(strings.Split(sel.AttrOr(attr, ""), ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 && !strings.HasPrefix(strings.ToLower(fields[0]), "data:") {
			return fields[0]
		}
	}
	return ""
}

func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func dimension(raw string) int {
	raw = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), "px")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// extractText prefers the readability article body and falls back to the
// selector-based content root of the full page.
func (s *Scraper) extractText(body []byte, doc *goquery.Document, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && article.Content != "" {
		if articleDoc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
			text := extractMainContent(articleDoc)
			if utf8.RuneCountInString(text) >= s.config.MinReadableChars {
				return text
			}
		}
	}
	return extractMainContent(doc)
}

const noiseSelector = "script, style, noscript, nav, aside, form, iframe, svg, template, button, select, [aria-hidden=true]"

func extractMainContent(doc *goquery.Document) string {
	doc.Find(noiseSelector).Remove()
	doc.Find("header, footer").Not("article header, article footer, main header").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		"[role=main]",
		".content",
		"#content",
		".post-content",
		".entry-content",
	}

	for _, selector := range selectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			if text := blockText(selected); text != "" {
				return text
			}
		}
	}

	// Fallback to body if no main content found
	if body := doc.Find("body"); body.Length() > 0 {
		return blockText(body)
	}
	return blockText(doc.Selection)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "figcaption": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

var boilerplate = map[string]bool{
	"cookie policy":    true,
	"accept cookies":   true,
	"privacy policy":   true,
	"terms of service": true,
	"skip to content":  true,
}

// blockText renders the selection as paragraphs: block elements start new
// paragraphs and whitespace inside a paragraph collapses to one space.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(spaceRun(n.Data))
			return
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	var paragraphs []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = collapse(line)
		if line == "" || boilerplate[strings.ToLower(line)] {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return strings.Join(paragraphs, "\n\n")
}

// spaceRun maps every whitespace run (including newlines from source
// formatting) to a single space so only block boundaries break lines.
func spaceRun(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if strings.TrimLeftFunc(s, isSpace) != s {
		out = " " + out
	}
	if strings.TrimRightFunc(s, isSpace) != s {
		out += " "
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' || r == 0xA0
}
