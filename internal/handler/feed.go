package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/newsroom/internal/model"
)

// Feed is the part of service.NewsService the news pages use. It never
// fails: an upstream problem comes back as a fallback page.
type Feed interface {
	Feed(ctx context.Context, page int) model.FeedPage
	Search(ctx context.Context, query string, page int) model.FeedPage
}

// FeedHandler serves the authenticated news pages. All three routes sit
// behind auth.RequireAuth.
type FeedHandler struct {
	feed   Feed
	pages  *Renderer
	logger *slog.Logger
}

func NewFeedHandler(feed Feed, pages *Renderer, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, pages: pages, logger: logger}
}

// HandleHome renders page 1 of the default feed.
//
// HTTP: GET /
func (h *FeedHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "Notícias", h.feed.Feed(r.Context(), 1))
}

// HandleNews renders one page of the default feed.
//
// HTTP: GET /news?page=N
func (h *FeedHandler) HandleNews(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "Notícias", h.feed.Feed(r.Context(), pageParam(r)))
}

// HandleSearch renders one page of results for q. An empty q shows the
// default feed.
//
// HTTP: GET /search?q=...&page=N
func (h *FeedHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	feed := h.feed.Search(r.Context(), r.URL.Query().Get("q"), pageParam(r))
	title := "Notícias"
	if feed.Query != "" {
		title = "Busca: " + feed.Query
	}
	h.render(w, r, title, feed)
}

func (h *FeedHandler) render(w http.ResponseWriter, r *http.Request, title string, feed model.FeedPage) {
	if feed.Fallback {
		h.logger.Debug("serving fallback feed", slog.String("path", r.URL.Path))
	}
	h.pages.Render(w, r, http.StatusOK, PageHome, PageData{Title: title, Feed: &feed})
}

// pageParam reads ?page, treating anything missing or unparsable as 1. The
// service clamps values below 1.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}
