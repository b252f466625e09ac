package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakif/newsroom/internal/metrics"
	"github.com/sakif/newsroom/internal/model"
	"github.com/sakif/newsroom/internal/news"
)

// NewsSource is the upstream feed. *news.Client implements it.
type NewsSource interface {
	Everything(ctx context.Context, query string, page int) (*news.Result, error)
	PageSize() int
}

// fallbackArticles are shown whenever the upstream can't give us anything.
var fallbackArticles = []model.Article{
	{
		Title:       "Notícia de teste 1",
		Description: "Descrição da notícia 1",
		URL:         "#",
	},
	{
		Title:       "Notícia de teste 2",
		Description: "Descrição da notícia 2",
		URL:         "#",
	},
}

// FallbackArticles returns a copy of the placeholder list.
func FallbackArticles() []model.Article {
	return append([]model.Article(nil), fallbackArticles...)
}

// NewsOptions configures NewsService.
type NewsOptions struct {
	DefaultQuery string        // used when the search box is empty
	CacheTTL     time.Duration // 0 disables caching
	CacheSize    int
}

// NewsService turns upstream pages into FeedPages. It never fails: any
// upstream error, or an empty first page, yields the fallback list.
//
// CACHING:
// Successful pages are kept in an expirable LRU keyed by (query, page).
// Fallback pages are never cached, so the real feed comes back as soon as
// the upstream recovers.
type NewsService struct {
	source       NewsSource
	defaultQuery string
	cache        *expirable.LRU[string, model.FeedPage]
	logger       *slog.Logger
}

func NewNewsService(source NewsSource, opts NewsOptions, logger *slog.Logger) *NewsService {
	s := &NewsService{
		source:       source,
		defaultQuery: opts.DefaultQuery,
		logger:       logger,
	}
	if s.defaultQuery == "" {
		s.defaultQuery = "tecnologia"
	}
	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = 256
		}
		s.cache = expirable.NewLRU[string, model.FeedPage](size, nil, opts.CacheTTL)
	}
	return s
}

// Feed returns page of the default feed.
func (s *NewsService) Feed(ctx context.Context, page int) model.FeedPage {
	return s.fetch(ctx, s.defaultQuery, "", page)
}

// Search returns page of articles matching query. An empty query is the
// default feed; the page still reports the query as typed.
func (s *NewsService) Search(ctx context.Context, query string, page int) model.FeedPage {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.fetch(ctx, s.defaultQuery, "", page)
	}
	return s.fetch(ctx, query, query, page)
}

func (s *NewsService) fetch(ctx context.Context, upstreamQuery, shownQuery string, page int) model.FeedPage {
	if page < 1 {
		page = 1
	}

	key := fmt.Sprintf("%s|%d", upstreamQuery, page)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			cached.Query = shownQuery
			return cached
		}
	}

	res, err := s.source.Everything(ctx, upstreamQuery, page)
	if err != nil {
		s.logger.Warn("news upstream failed, serving fallback",
			slog.String("query", upstreamQuery),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		return s.fallback(shownQuery)
	}
	if len(res.Articles) == 0 && page == 1 {
		s.logger.Info("news upstream returned nothing, serving fallback", slog.String("query", upstreamQuery))
		return s.fallback(shownQuery)
	}

	feed := model.FeedPage{
		Articles:    res.Articles,
		Query:       shownQuery,
		CurrentPage: page,
		TotalPages:  totalPages(res.TotalResults, s.source.PageSize()),
	}
	if s.cache != nil {
		s.cache.Add(key, feed)
	}
	return feed
}

func (s *NewsService) fallback(query string) model.FeedPage {
	metrics.FeedFallbacks.Inc()
	return model.FeedPage{
		Articles:    FallbackArticles(),
		Query:       query,
		CurrentPage: 1,
		TotalPages:  1,
		Fallback:    true,
	}
}

// totalPages is ceil(total / size), at least 1.
func totalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}
