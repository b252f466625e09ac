package model

// Article is one entry of the news feed, already flattened for the templates.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage,omitempty"`
	Source      string `json:"source,omitempty"`
}

// FeedPage is what the home, news and search pages render.
//
// Fallback is true when the upstream news API failed or returned nothing and
// the placeholder list is being shown instead.
type FeedPage struct {
	Articles    []Article `json:"articles"`
	Query       string    `json:"query"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	Fallback    bool      `json:"fallback"`
}

// HasPrev reports whether a previous page link should be rendered.
func (p FeedPage) HasPrev() bool { return p.CurrentPage > 1 }

// HasNext reports whether a next page link should be rendered.
func (p FeedPage) HasNext() bool { return p.CurrentPage < p.TotalPages }

// PrevPage returns the previous page number.
func (p FeedPage) PrevPage() int { return p.CurrentPage - 1 }

// NextPage returns the next page number.
func (p FeedPage) NextPage() int { return p.CurrentPage + 1 }
