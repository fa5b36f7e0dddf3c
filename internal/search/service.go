package search

import (
	"log"
	"sort"
	"strings"
	"sync"

	"agencyos/internal/content"
)

// Service is the facade that tries Meilisearch first and falls back to
// scanning the in-memory tree and comments.
type Service struct {
	meili    *Meili
	tree     *content.Tree
	sections map[string]string

	mu       sync.RWMutex
	comments map[string]string
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, tree *content.Tree) *Service {
	s := &Service{
		meili:    meili,
		tree:     tree,
		sections: map[string]string{},
		comments: map[string]string{},
	}
	var walk func(nodes []content.Node, section string)
	walk = func(nodes []content.Node, section string) {
		for _, n := range nodes {
			sec := section
			if sec == "" {
				sec = n.ID
			}
			s.sections[n.ID] = sec
			walk(n.Children, sec)
		}
	}
	walk(tree.Roots(), "")
	return s
}

// Engine names the backend that would serve a search right now.
func (s *Service) Engine() string {
	if s.meili != nil && s.meili.Healthy() {
		return "meilisearch"
	}
	return "memory"
}

// Search tries Meilisearch if healthy, otherwise scans in memory.
func (s *Service) Search(q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		return Response{Results: []Result{}, Query: q.Text, Engine: s.Engine()}
	}
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to memory: %v", err)
	}

	results := s.scan(q)
	total := len(results)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "memory"}
}

func (s *Service) scan(q Query) []Result {
	var results []Result
	if q.FilterType == "" || q.FilterType == ResultNode {
		for _, n := range s.tree.Flatten() {
			if !n.Matches(q.Text) {
				continue
			}
			results = append(results, Result{
				Type:    ResultNode,
				NodeID:  n.ID,
				Title:   n.Title,
				Snippet: n.MatchingLine(q.Text),
				Section: s.sections[n.ID],
			})
		}
	}
	if q.FilterType == "" || q.FilterType == ResultComment {
		needle := content.Fold(strings.TrimSpace(q.Text))
		s.mu.RLock()
		ids := make([]string, 0, len(s.comments))
		for id, text := range s.comments {
			if strings.Contains(content.Fold(text), needle) {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			results = append(results, Result{
				Type:    ResultComment,
				NodeID:  id,
				Title:   s.title(id),
				Snippet: s.comments[id],
				Section: s.sections[id],
			})
		}
		s.mu.RUnlock()
	}
	return results
}

func (s *Service) title(id string) string {
	if n, err := s.tree.Find(id); err == nil {
		return n.Title
	}
	return id
}

// ReindexAll pushes every node and the known comments to Meilisearch.
func (s *Service) ReindexAll() {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexNodes(NodeRecords(s.tree, s.sections)); err != nil {
		log.Printf("search: reindex nodes: %v", err)
	}
	s.mu.RLock()
	records := s.commentRecords(s.comments)
	s.mu.RUnlock()
	if err := s.meili.IndexComments(records); err != nil {
		log.Printf("search: reindex comments: %v", err)
	}
}

// UpdateComments replaces the searchable comments and pushes the
// difference to Meilisearch (fire-and-forget).
func (s *Service) UpdateComments(comments map[string]string) {
	s.mu.Lock()
	prev := s.comments
	next := make(map[string]string, len(comments))
	for k, v := range comments {
		next[k] = v
	}
	s.comments = next
	s.mu.Unlock()

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	changed := map[string]string{}
	for id, text := range next {
		if prev[id] != text {
			changed[id] = text
		}
	}
	var removed []string
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, recordKey("c", id))
		}
	}
	if len(changed) == 0 && len(removed) == 0 {
		return
	}
	records := s.commentRecords(changed)
	go func() {
		if err := s.meili.IndexComments(records); err != nil {
			log.Printf("search: index comments: %v", err)
		}
		if err := s.meili.DeleteComments(removed); err != nil {
			log.Printf("search: delete comments: %v", err)
		}
	}()
}

func (s *Service) commentRecords(comments map[string]string) []CommentRecord {
	records := make([]CommentRecord, 0, len(comments))
	for id, text := range comments {
		records = append(records, CommentRecord{
			ID:     recordKey("c", id),
			NodeID: id,
			Title:  s.title(id),
			Body:   text,
		})
	}
	return records
}

// NodeRecords builds index records for every node in tree.
func NodeRecords(tree *content.Tree, sections map[string]string) []NodeRecord {
	nodes := tree.Flatten()
	records := make([]NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		var body []string
		for _, list := range [][]string{n.KPIs, n.Insights, n.Examples, n.Solutions} {
			body = append(body, list...)
		}
		records = append(records, NodeRecord{
			ID:      recordKey("n", n.ID),
			NodeID:  n.ID,
			Title:   n.Title,
			Body:    strings.Join(body, "\n"),
			Section: sections[n.ID],
			Tag:     n.Tag,
		})
	}
	return records
}

// recordKey maps a node id onto the index key alphabet (a-z A-Z 0-9 - _).
func recordKey(prefix, id string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
