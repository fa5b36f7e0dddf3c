package search

import (
	"encoding/json"
	"testing"

	"agencyos/internal/content"
	meili "github.com/meilisearch/meilisearch-go"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tree, err := content.Default()
	if err != nil {
		t.Fatalf("content.Default() error = %v", err)
	}
	return NewService(nil, tree)
}

func TestFallbackFindsNestedNodes(t *testing.T) {
	svc := newTestService(t)
	resp := svc.Search(Query{Text: "ogilvy"})

	if resp.Engine != "memory" {
		t.Errorf("expected memory engine, got %s", resp.Engine)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected one hit, got %+v", resp)
	}
	hit := resp.Results[0]
	if hit.NodeID != "1.3" || hit.Section != "1" || hit.Snippet != "Prova concreta > adjetivo (Ogilvy)." {
		t.Fatalf("unexpected hit %+v", hit)
	}
}

func TestFallbackSearchesComments(t *testing.T) {
	svc := newTestService(t)
	svc.UpdateComments(map[string]string{"3.2": "Revisar briefing com o cliente", "4.1": "ok"})

	resp := svc.Search(Query{Text: "REVISAR", FilterType: ResultComment})
	if len(resp.Results) != 1 {
		t.Fatalf("expected one comment hit, got %+v", resp.Results)
	}
	if r := resp.Results[0]; r.NodeID != "3.2" || r.Title != "Briefing" || r.Section != "3" {
		t.Fatalf("unexpected comment hit %+v", r)
	}

	svc.UpdateComments(map[string]string{})
	if resp := svc.Search(Query{Text: "revisar", FilterType: ResultComment}); len(resp.Results) != 0 {
		t.Fatalf("removed comment still found: %+v", resp.Results)
	}
}

func TestFallbackLimit(t *testing.T) {
	svc := newTestService(t)
	resp := svc.Search(Query{Text: "a", Limit: 3})
	if len(resp.Results) != 3 || resp.Total <= 3 {
		t.Fatalf("expected 3 results out of more, got %d of %d", len(resp.Results), resp.Total)
	}
}

func TestEmptyQuery(t *testing.T) {
	svc := newTestService(t)
	resp := svc.Search(Query{Text: "  "})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp.Results)
	}
}

func TestNodeRecordsUseValidKeys(t *testing.T) {
	svc := newTestService(t)
	records := NodeRecords(svc.tree, svc.sections)
	if len(records) != 56 {
		t.Fatalf("expected 56 records, got %d", len(records))
	}
	for _, r := range records {
		if r.NodeID == "10.4" {
			if r.ID != "n_10_4" || r.Section != "10" {
				t.Fatalf("unexpected record %+v", r)
			}
			return
		}
	}
	t.Fatal("record for 10.4 not found")
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	hit := meili.Hit{
		"nodeId":     json.RawMessage(`"5.2"`),
		"title":      json.RawMessage(`"ABR — Average Billable Rate"`),
		"body":       json.RawMessage(`"AGI / horas faturáveis."`),
		"section":    json.RawMessage(`"5"`),
		"_formatted": json.RawMessage(`{"title":"<mark>ABR</mark> — Average Billable Rate","body":""}`),
	}
	r := hitToResult(hit, ResultNode)
	if r.Title != "<mark>ABR</mark> — Average Billable Rate" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.Snippet != "AGI / horas faturáveis." {
		t.Errorf("Snippet should fall back to raw body, got %q", r.Snippet)
	}
	if r.NodeID != "5.2" || r.Section != "5" || r.Type != ResultNode {
		t.Errorf("unexpected result %+v", r)
	}
}
