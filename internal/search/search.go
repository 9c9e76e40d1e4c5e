// Package search finds an owner's pages and folders by text.
package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPage   ResultType = "page"
	ResultFolder ResultType = "folder"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ParentID *string    `json:"parent_id"`
}

// Query describes a search request. OwnerID always scopes the results.
type Query struct {
	OwnerID    string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// PageRecord is the data we index for a page. Body is plain text.
type PageRecord struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	ParentID *string `json:"parentId"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
}

// FolderRecord is the data we index for a folder.
type FolderRecord struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	ParentID *string `json:"parentId"`
	Name     string  `json:"name"`
}

const defaultLimit = 20

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return defaultLimit
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
