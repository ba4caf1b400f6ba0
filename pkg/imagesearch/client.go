package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xhad/linkpress/internal/models"
)

// HardMaxResults bounds every search regardless of configuration.
const HardMaxResults = 8

var (
	ErrNoToken          = errors.New("no vqd token in search page")
	ErrMalformedPayload = errors.New("malformed image results payload")
)

// State is the position of a single search in its two-step exchange.
type State int

const (
	NeedToken State = iota
	HaveToken
	Queried
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NeedToken:
		return "need_token"
	case HaveToken:
		return "have_token"
	case Queried:
		return "queried"
	case Done:
		return "done"
	default:
		return "failed"
	}
}

type ClientConfig struct {
	Enabled    bool
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

type Client struct {
	config ClientConfig
	client *http.Client
}

func NewClient(config ClientConfig, client *http.Client) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://duckduckgo.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxResults <= 0 || config.MaxResults > HardMaxResults {
		config.MaxResults = HardMaxResults
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{config: config, client: client}
}

func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// Search returns at most MaxResults candidates for query. It never fails:
// a disabled client, a blank query or any error in the exchange yields an
// empty slice.
func (c *Client) Search(ctx context.Context, query string) []models.ImageCandidate {
	query = strings.TrimSpace(query)
	if !c.config.Enabled || query == "" {
		return []models.ImageCandidate{}
	}

	logger := zerolog.Ctx(ctx)
	results, state, err := c.search(ctx, query)
	if err != nil {
		logger.Debug().Err(err).Str("query", query).Stringer("state", state).Msg("image search failed")
		return []models.ImageCandidate{}
	}

	logger.Debug().Str("query", query).Int("results", len(results)).Msg("image search done")
	return results
}

func (c *Client) search(ctx context.Context, query string) ([]models.ImageCandidate, State, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	token, err := c.token(ctx, query)
	if err != nil {
		return nil, NeedToken, err
	}

	body, err := c.query(ctx, query, token)
	if err != nil {
		return nil, HaveToken, err
	}

	results, err := parseResults(body, c.config.MaxResults)
	if err != nil {
		return nil, Queried, err
	}
	return results, Done, nil
}

var vqdPattern = regexp.MustCompile(`vqd=['"]?([^&"']+)`)

func (c *Client) token(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("t", "h_")
	params.Set("iax", "images")
	params.Set("ia", "images")

	body, err := c.get(ctx, c.config.BaseURL+"/?"+params.Encode(), "text/html,application/xhtml+xml")
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}

	m := vqdPattern.FindSubmatch(body)
	if m == nil {
		return "", ErrNoToken
	}
	return string(m[1]), nil
}

func (c *Client) query(ctx context.Context, query, token string) ([]byte, error) {
	params := url.Values{}
	params.Set("l", "us-en")
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", token)
	params.Set("f", ",,,")
	params.Set("p", "1")

	body, err := c.get(ctx, c.config.BaseURL+"/i.js?"+params.Encode(), "application/json, text/javascript, */*; q=0.01")
	if err != nil {
		return nil, fmt.Errorf("results request: %w", err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Referer", c.config.BaseURL+"/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}

type resultsPayload struct {
	Results []struct {
		Title     string `json:"title"`
		Image     string `json:"image"`
		Thumbnail string `json:"thumbnail"`
		URL       string `json:"url"`
	} `json:"results"`
}

func parseResults(body []byte, limit int) ([]models.ImageCandidate, error) {
	raw := balancedObject(body)
	if raw == nil {
		return nil, ErrMalformedPayload
	}

	var payload resultsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	results := make([]models.ImageCandidate, 0, limit)
	for _, item := range payload.Results {
		if len(results) == limit {
			break
		}
		full := firstNonEmpty(item.Image, item.Thumbnail)
		if !usable(full) {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "image"
		}
		page := item.URL
		if !usable(page) {
			page = full
		}
		results = append(results, models.ImageCandidate{
			ThumbnailURL: firstNonEmpty(item.Thumbnail, item.Image),
			FullURL:      full,
			Title:        title,
			SourceURL:    page,
		})
	}
	return results, nil
}

// balancedObject returns the first complete top-level JSON object in body,
// skipping any wrapper text around it.
func balancedObject(body []byte) []byte {
	start := -1
	depth := 0
	inString, escaped := false, false
	for i, b := range body {
		if start < 0 {
			if b == '{' {
				start, depth = i, 1
			}
			continue
		}
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{':
			depth++
		case b == '}':
			depth--
			if depth == 0 {
				return body[start : i+1]
			}
		}
	}
	return nil
}

func usable(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
