package export

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"agencyos/internal/content"
	"agencyos/internal/glossary"
	"agencyos/internal/state"
)

const documentTitle = "Agency OS — Mapa Mental"

// StateSource provides the current collaborative maps.
type StateSource interface {
	Snapshot() state.Snapshot
}

// Highlighter marks glossary terms in text.
type Highlighter interface {
	HTML(text string) string
}

// Service provides mind map export functionality
type Service struct {
	tree     *content.Tree
	glossary Highlighter
	state    StateSource
	now      func() time.Time
}

// NewService creates a new export service. gloss may be nil.
func NewService(tree *content.Tree, gloss *glossary.Glossary, src StateSource) *Service {
	s := &Service{tree: tree, state: src, now: time.Now}
	if gloss != nil {
		s.glossary = gloss
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, format Format) (*Result, error) {
	switch format {
	case FormatJSON:
		return s.Progress()
	case FormatText:
		return &Result{
			Data:     []byte(s.tree.Outline()),
			Filename: "agencyos-mapa.txt",
			MimeType: "text/plain; charset=utf-8",
		}, nil
	}

	html, err := s.RenderHTML()
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: "agencyos-mapa.html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, html, "agencyos-mapa")
	case FormatDOCX:
		return exportDOCX(ctx, html, "agencyos-mapa")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Progress exports both maps as indented JSON.
func (s *Service) Progress() (*Result, error) {
	snap := s.state.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: ProgressFilename,
		MimeType: "application/json",
	}, nil
}

// RenderHTML renders the full mind map with progress marks and comments.
func (s *Service) RenderHTML() (string, error) {
	snap := s.state.Snapshot()
	progress := s.tree.Progress(snap.CheckedMap)

	var build func(nodes []content.Node) []TemplateNode
	build = func(nodes []content.Node) []TemplateNode {
		out := make([]TemplateNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, TemplateNode{
				ID:        n.ID,
				Title:     s.highlight(n.Title),
				Tag:       n.Tag,
				Checked:   snap.CheckedMap[n.ID],
				Comment:   snap.CommentsMap[n.ID],
				KPIs:      s.highlightAll(n.KPIs),
				Insights:  s.highlightAll(n.Insights),
				Examples:  s.highlightAll(n.Examples),
				Solutions: s.highlightAll(n.Solutions),
				Refs:      n.Refs,
				Children:  build(n.Children),
			})
		}
		return out
	}

	return RenderMindMapHTML(TemplateData{
		Title:       documentTitle,
		GeneratedAt: s.now(),
		Completed:   progress.Completed,
		Total:       progress.Total,
		Percent:     progress.Percent,
		Sections:    build(s.tree.Roots()),
	})
}

func (s *Service) highlight(text string) template.HTML {
	if s.glossary == nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(s.glossary.HTML(text))
}

func (s *Service) highlightAll(lines []string) []template.HTML {
	if len(lines) == 0 {
		return nil
	}
	out := make([]template.HTML, len(lines))
	for i, line := range lines {
		out[i] = s.highlight(line)
	}
	return out
}
