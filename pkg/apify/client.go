package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com/v2"

// Actor IDs for the LinkedIn scrapers. Apify encodes the owner/name
// separator as a tilde in URL paths.
const (
	companyProfileActor = "scrapeverse~linkedin-company-profile-scraper"
	profileScraperActor = "icypeas_official~linkedin-profile-scraper"
	companyPostsActor   = "supreme_coder~linkedin-post"
)

// Client defines the professional-network scraping operations used by the
// research tools. Results are provider-specific records, left raw for the
// agent to interpret.
type Client interface {
	ScrapeCompanyProfile(ctx context.Context, companyName string) (json.RawMessage, error)
	ScrapeProfileURL(ctx context.Context, profileURL string) (json.RawMessage, error)
	ScrapeCompanyPosts(ctx context.Context, companyURL string, limit int) ([]json.RawMessage, error)
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the status code for retry classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// ErrNoItems is returned when an actor run completes with an empty
// dataset.
var ErrNoItems = eris.New("apify: actor run produced no items")

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http. Actor runs use the
// synchronous run endpoint, which blocks until the run finishes and
// returns the dataset items directly.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			// Actor runs are slow: the sync endpoint holds the
			// connection for the duration of the scrape.
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ScrapeCompanyProfile(ctx context.Context, companyName string) (json.RawMessage, error) {
	input := map[string]any{
		"companyName": companyName,
		"maxResults":  1,
	}
	items, err := c.runActor(ctx, companyProfileActor, input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: scrape company profile")
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items[0], nil
}

func (c *httpClient) ScrapeProfileURL(ctx context.Context, profileURL string) (json.RawMessage, error) {
	input := map[string]any{
		"profileUrls": []string{profileURL},
	}
	items, err := c.runActor(ctx, profileScraperActor, input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: scrape profile")
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items[0], nil
}

func (c *httpClient) ScrapeCompanyPosts(ctx context.Context, companyURL string, limit int) ([]json.RawMessage, error) {
	input := map[string]any{
		"startUrls": []map[string]string{{"url": companyURL}},
		"maxPosts":  limit,
	}
	items, err := c.runActor(ctx, companyPostsActor, input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: scrape company posts")
	}
	return items, nil
}

// runActor starts an actor synchronously and returns its dataset items.
func (c *httpClient) runActor(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	buf, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "marshal actor input")
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, actorID, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrap(err, "decode dataset items")
	}

	return items, nil
}
