package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SummaryUnavailable replaces a summary the model could not produce
const SummaryUnavailable = "Unable to generate summary."

// Article is a processed news item
type Article struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Source      string `json:"source"`
}

// NewsSource returns the latest sustainability articles
type NewsSource interface {
	Articles(ctx context.Context) ([]Article, error)
}

// Summarizer condenses an article into a few sentences
type Summarizer interface {
	Summarize(ctx context.Context, title, description string) (string, error)
}

// NewsAPIClient queries a NewsAPI-style endpoint
type NewsAPIClient struct {
	http         *HTTPClient
	baseURL      string
	apiKey       string
	query        string
	maxArticles  int
	lookbackDays int
	summarizer   Summarizer
	now          func() time.Time
}

// NewsOptions configures NewsAPIClient
type NewsOptions struct {
	Query        string
	MaxArticles  int
	LookbackDays int
	Summarizer   Summarizer
	Now          func() time.Time
}

// NewNewsAPIClient creates a news client
func NewNewsAPIClient(h *HTTPClient, baseURL, apiKey string, opts NewsOptions) *NewsAPIClient {
	if opts.Query == "" {
		opts.Query = "sustainability OR climate change OR renewable energy"
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 5
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NewsAPIClient{
		http:         h,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		query:        opts.Query,
		maxArticles:  opts.MaxArticles,
		lookbackDays: opts.LookbackDays,
		summarizer:   opts.Summarizer,
		now:          opts.Now,
	}
}

type newsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// Articles fetches the most relevant recent articles and summarises each.
// A failed summary does not fail the fetch.
func (n *NewsAPIClient) Articles(ctx context.Context) ([]Article, error) {
	end := n.now()
	start := end.AddDate(0, 0, -n.lookbackDays)

	q := url.Values{}
	q.Set("q", n.query)
	q.Set("from", start.Format("2006-01-02"))
	q.Set("to", end.Format("2006-01-02"))
	q.Set("language", "en")
	q.Set("sortBy", "relevancy")
	q.Set("apiKey", n.apiKey)

	var resp newsResponse
	if err := n.http.GetJSON(ctx, n.baseURL+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}

	raw := resp.Articles
	if len(raw) > n.maxArticles {
		raw = raw[:n.maxArticles]
	}

	articles := make([]Article, 0, len(raw))
	for _, a := range raw {
		summary := SummaryUnavailable
		if n.summarizer != nil {
			if s, err := n.summarizer.Summarize(ctx, a.Title, a.Description); err == nil && s != "" {
				summary = s
			}
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Summary:     summary,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
			Source:      a.Source.Name,
		})
	}
	return articles, nil
}
