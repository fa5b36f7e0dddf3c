// Package glossary finds known acronyms and jargon in free text and
// attaches their definitions.
package glossary

import (
	_ "embed"
	"errors"
	"fmt"
	"html"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed glossary.yaml
var defaultTerms []byte

type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Segment is a run of text; Term is set when the run is a glossary term.
type Segment struct {
	Text       string `json:"text"`
	Term       string `json:"term,omitempty"`
	Definition string `json:"definition,omitempty"`
}

type Glossary struct {
	terms  []Term
	lookup map[string]Term
	re     *regexp.Regexp
}

func Default() (*Glossary, error) {
	return Parse(defaultTerms)
}

// Load reads terms from path, or the built-in set when path is empty.
func Load(path string) (*Glossary, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	return Parse(data)
}

// Parse builds a glossary from a YAML mapping of term to definition.
// Terms are matched case-insensitively as whole words, longest first.
func Parse(data []byte) (*Glossary, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse glossary: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("glossary: no terms")
	}

	g := &Glossary{lookup: make(map[string]Term, len(raw))}
	for term, def := range raw {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := g.lookup[key]; dup {
			return nil, fmt.Errorf("glossary: term %q defined twice", term)
		}
		t := Term{Term: term, Definition: strings.TrimSpace(def)}
		g.lookup[key] = t
		g.terms = append(g.terms, t)
	}

	byLength := make([]string, 0, len(g.terms))
	for _, t := range g.terms {
		byLength = append(byLength, regexp.QuoteMeta(t.Term))
	}
	sort.Slice(byLength, func(i, j int) bool {
		if len(byLength[i]) != len(byLength[j]) {
			return len(byLength[i]) > len(byLength[j])
		}
		return byLength[i] < byLength[j]
	})
	re, err := regexp.Compile(`(?i)\b(` + strings.Join(byLength, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("compile glossary: %w", err)
	}
	g.re = re

	sort.Slice(g.terms, func(i, j int) bool {
		return strings.ToLower(g.terms[i].Term) < strings.ToLower(g.terms[j].Term)
	})
	return g, nil
}

// Terms returns all terms in alphabetical order.
func (g *Glossary) Terms() []Term {
	return g.terms
}

func (g *Glossary) Define(term string) (string, bool) {
	t, ok := g.lookup[strings.ToLower(term)]
	return t.Definition, ok
}

func (g *Glossary) Contains(text string) bool {
	return g.re.MatchString(text)
}

// Segments splits text into plain runs and term runs. The term run keeps
// the casing found in text.
func (g *Glossary) Segments(text string) []Segment {
	if text == "" {
		return nil
	}
	var out []Segment
	last := 0
	for _, loc := range g.re.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			out = append(out, Segment{Text: text[last:loc[0]]})
		}
		match := text[loc[0]:loc[1]]
		t := g.lookup[strings.ToLower(match)]
		out = append(out, Segment{Text: match, Term: t.Term, Definition: t.Definition})
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, Segment{Text: text[last:]})
	}
	return out
}

// HTML renders text escaped, with each term wrapped in an abbr element
// carrying its definition.
func (g *Glossary) HTML(text string) string {
	var b strings.Builder
	for _, seg := range g.Segments(text) {
		if seg.Term == "" {
			b.WriteString(html.EscapeString(seg.Text))
			continue
		}
		fmt.Fprintf(&b, `<abbr class="term" title="%s">%s</abbr>`,
			html.EscapeString(seg.Definition), html.EscapeString(seg.Text))
	}
	return b.String()
}
