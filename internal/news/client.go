// Package news is a small client for the newsapi.org "everything" endpoint.
//
// Only the fields the feed renders are decoded. Every failure, including
// the API's own {"status":"error"} replies, comes back as
// apperror.ErrUpstreamFeed so the caller can swap in the fallback list.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sakif/newsroom/internal/apperror"
	"github.com/sakif/newsroom/internal/model"
)

const (
	DefaultBaseURL  = "https://newsapi.org/v2"
	DefaultPageSize = 20
)

// Config configures a Client. Zero values get defaults.
type Config struct {
	BaseURL  string
	APIKey   string
	Language string
	PageSize int
	Timeout  time.Duration
}

// Client calls newsapi.org.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	language string
	pageSize int
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		pageSize: cfg.PageSize,
	}
}

// PageSize is the number of articles requested per page.
func (c *Client) PageSize() int { return c.pageSize }

// Result is one page of search results.
type Result struct {
	Articles     []model.Article
	TotalResults int
}

type everythingResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []articlePayload `json:"articles"`
}

type articlePayload struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
}

// Everything searches articles matching query. page is 1-based.
func (c *Client) Everything(ctx context.Context, query string, page int) (*Result, error) {
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("q", query)
	if c.language != "" {
		params.Set("language", c.language)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, apperror.UpstreamFeed(fmt.Errorf("building request: %w", err))
	}
	// Header rather than query string so the key stays out of access logs.
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.UpstreamFeed(fmt.Errorf("calling newsapi: %w", err))
	}
	defer resp.Body.Close()

	var body everythingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperror.UpstreamFeed(fmt.Errorf("decoding newsapi response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return nil, apperror.UpstreamFeed(fmt.Errorf("newsapi returned %d %s: %s", resp.StatusCode, body.Code, body.Message))
	}

	articles := make([]model.Article, 0, len(body.Articles))
	for _, a := range body.Articles {
		description := a.Description
		if description == "" {
			description = a.Content
		}
		articles = append(articles, model.Article{
			Title:       a.Title,
			Description: description,
			URL:         a.URL,
			URLToImage:  a.URLToImage,
			Source:      a.Source.Name,
		})
	}

	return &Result{Articles: articles, TotalResults: body.TotalResults}, nil
}
