package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prep-service/pkg/anthropic"
	"github.com/sells-group/prep-service/pkg/apify"
	"github.com/sells-group/prep-service/pkg/firecrawl"
	"github.com/sells-group/prep-service/pkg/serpapi"
)

const (
	// maxScrapeChars bounds how much page content one tool result feeds
	// back into the context window.
	maxScrapeChars = 15000

	defaultSearchResults = 10
	defaultLinkedInPosts = 10
)

// toolset binds the five research tools to their provider clients and
// records what happened during a run: which tools failed (fed into the
// package's research limitations) and which URLs were actually visited.
// A toolset is built per attempt; the agent loop calls handlers
// sequentially, so no locking is needed.
type toolset struct {
	search  serpapi.Client
	scraper firecrawl.Client
	network apify.Client

	searchResults int

	failures []string
	visited  []string
}

func newToolset(search serpapi.Client, scraper firecrawl.Client, network apify.Client, searchResults int) *toolset {
	if searchResults <= 0 {
		searchResults = defaultSearchResults
	}
	return &toolset{
		search:        search,
		scraper:       scraper,
		network:       network,
		searchResults: searchResults,
	}
}

// bindings returns the tool definitions in the order the system prompt
// introduces them.
func (t *toolset) bindings() []anthropic.ToolBinding {
	return []anthropic.ToolBinding{
		{
			Name:        "web_search",
			Description: "Search the web for information about a company, person, or topic. Returns organic and news results.",
			InputSchema: anthropic.ToolSchema{
				Properties: map[string]anthropic.Property{
					"query":       {Type: "string", Description: "The search query"},
					"num_results": {Type: "integer", Description: "How many results to return (default 10)"},
				},
				Required: []string{"query"},
			},
			Handler: t.webSearch,
		},
		{
			Name:        "scrape_website",
			Description: "Fetch a web page and return its content as markdown. Use for company websites, news articles, and blog posts.",
			InputSchema: anthropic.ToolSchema{
				Properties: map[string]anthropic.Property{
					"url": {Type: "string", Description: "The full URL to scrape"},
				},
				Required: []string{"url"},
			},
			Handler: t.scrapeWebsite,
		},
		{
			Name:        "get_company_linkedin",
			Description: "Fetch a company's LinkedIn profile: size, industry, description, and specialties.",
			InputSchema: anthropic.ToolSchema{
				Properties: map[string]anthropic.Property{
					"company_name": {Type: "string", Description: "The company name to look up"},
				},
				Required: []string{"company_name"},
			},
			Handler: t.companyLinkedIn,
		},
		{
			Name:        "search_linkedin_profile",
			Description: "Find and fetch a person's LinkedIn profile by name and company. Use for contacts and decision makers.",
			InputSchema: anthropic.ToolSchema{
				Properties: map[string]anthropic.Property{
					"person_name":  {Type: "string", Description: "The person's full name"},
					"company_name": {Type: "string", Description: "The company they work at"},
				},
				Required: []string{"person_name", "company_name"},
			},
			Handler: t.personLinkedIn,
		},
		{
			Name:        "scrape_linkedin_posts",
			Description: "Fetch a company's recent LinkedIn posts for signals about initiatives and announcements.",
			InputSchema: anthropic.ToolSchema{
				Properties: map[string]anthropic.Property{
					"company_name": {Type: "string", Description: "The company name"},
					"limit":        {Type: "integer", Description: "Maximum number of posts (default 10)"},
				},
				Required: []string{"company_name"},
			},
			Handler: t.companyPosts,
		},
	}
}

// fail records a tool failure as a research limitation and returns the
// error for the agent loop to relay to the model.
func (t *toolset) fail(tool string, err error) error {
	t.failures = append(t.failures, fmt.Sprintf("%s failed: %v", tool, err))
	return err
}

func (t *toolset) webSearch(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		Query      string `json:"query"`
		NumResults int    `json:"num_results"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, eris.Wrap(err, "research: web_search args")
	}

	numResults := args.NumResults
	if numResults <= 0 {
		numResults = t.searchResults
	}
	resp, err := t.search.Search(ctx, args.Query, numResults)
	if err != nil {
		return nil, t.fail("web_search", err)
	}

	type hit struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date,omitempty"`
	}
	out := struct {
		Results []hit `json:"results"`
		News    []hit `json:"news,omitempty"`
	}{}
	for _, r := range resp.OrganicResults {
		out.Results = append(out.Results, hit{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	for _, n := range resp.NewsResults {
		out.News = append(out.News, hit{Title: n.Title, Link: n.Link, Snippet: n.Snippet, Date: n.Date})
	}
	return out, nil
}

func (t *toolset) scrapeWebsite(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, eris.Wrap(err, "research: scrape_website args")
	}

	resp, err := t.scraper.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     args.URL,
		Formats: []string{"markdown"},
	})
	if err != nil {
		return nil, t.fail("scrape_website", err)
	}
	if !resp.Success {
		return nil, t.fail("scrape_website", eris.Errorf("scrape rejected: %s", resp.Error))
	}
	t.visited = append(t.visited, args.URL)

	content := resp.Data.Markdown
	if len(content) > maxScrapeChars {
		content = content[:maxScrapeChars] + "\n\n[content truncated]"
	}
	return map[string]string{
		"title":   resp.Data.Metadata.Title,
		"url":     args.URL,
		"content": content,
	}, nil
}

func (t *toolset) companyLinkedIn(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		CompanyName string `json:"company_name"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, eris.Wrap(err, "research: get_company_linkedin args")
	}

	profile, err := t.network.ScrapeCompanyProfile(ctx, args.CompanyName)
	if err != nil {
		return nil, t.fail("get_company_linkedin", err)
	}
	return profile, nil
}

// personLinkedIn runs in two phases: a web search scoped to LinkedIn
// profile pages finds the URL, then the profile scraper fetches it.
func (t *toolset) personLinkedIn(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		PersonName  string `json:"person_name"`
		CompanyName string `json:"company_name"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, eris.Wrap(err, "research: search_linkedin_profile args")
	}

	query := fmt.Sprintf("site:linkedin.com/in %s %s", args.PersonName, args.CompanyName)
	resp, err := t.search.Search(ctx, query, 5)
	if err != nil {
		return nil, t.fail("search_linkedin_profile", err)
	}

	profileURL := ""
	for _, r := range resp.OrganicResults {
		if strings.Contains(r.Link, "linkedin.com/in/") {
			profileURL = r.Link
			break
		}
	}
	if profileURL == "" {
		return nil, t.fail("search_linkedin_profile",
			eris.Errorf("no LinkedIn profile found for %s at %s", args.PersonName, args.CompanyName))
	}

	profile, err := t.network.ScrapeProfileURL(ctx, profileURL)
	if err != nil {
		return nil, t.fail("search_linkedin_profile", err)
	}
	t.visited = append(t.visited, profileURL)

	return map[string]any{
		"profile_url": profileURL,
		"profile":     profile,
	}, nil
}

// companyPosts derives the company's posts page from its name, so the
// model can pull posts without having looked the page up first.
func (t *toolset) companyPosts(ctx context.Context, input json.RawMessage) (any, error) {
	var args struct {
		CompanyName string `json:"company_name"`
		Limit       int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, eris.Wrap(err, "research: scrape_linkedin_posts args")
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultLinkedInPosts
	}
	postsURL := fmt.Sprintf("https://www.linkedin.com/company/%s/posts/",
		strings.ReplaceAll(args.CompanyName, " ", ""))

	posts, err := t.network.ScrapeCompanyPosts(ctx, postsURL, limit)
	if err != nil {
		return nil, t.fail("scrape_linkedin_posts", err)
	}
	if len(posts) == 0 {
		zap.L().Debug("no linkedin posts found", zap.String("url", postsURL))
	}
	return posts, nil
}
