package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNode    ResultType = "node"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	NodeID  string     `json:"nodeId"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Section string     `json:"section,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// NodeRecord is the data we index for a mind-map node. ID is the index
// key; node ids contain dots, which index keys may not.
type NodeRecord struct {
	ID      string `json:"id"`
	NodeID  string `json:"nodeId"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Section string `json:"section"`
	Tag     string `json:"tag"`
}

// CommentRecord is the data we index for a node comment.
type CommentRecord struct {
	ID     string `json:"id"`
	NodeID string `json:"nodeId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
