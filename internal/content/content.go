// Package content holds the mind-map tree: sections with KPIs, insights,
// examples, solutions and references, loaded from YAML.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var ErrNodeNotFound = errors.New("node not found")

//go:embed mindmap.yaml
var defaultTree []byte

type Node struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Tag       string   `yaml:"tag,omitempty" json:"tag,omitempty"`
	Icon      string   `yaml:"icon,omitempty" json:"icon,omitempty"`
	KPIs      []string `yaml:"kpis,omitempty" json:"kpis,omitempty"`
	Insights  []string `yaml:"insights,omitempty" json:"insights,omitempty"`
	Examples  []string `yaml:"examples,omitempty" json:"examples,omitempty"`
	Solutions []string `yaml:"solutions,omitempty" json:"solutions,omitempty"`
	Refs      []string `yaml:"refs,omitempty" json:"refs,omitempty"`
	Children  []Node   `yaml:"children,omitempty" json:"children,omitempty"`
}

// Tree is an immutable, validated node tree.
type Tree struct {
	roots []Node
	flat  []Node
	index map[string]int
}

// Progress is the completion summary of the checked map.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// Default returns the built-in tree.
func Default() (*Tree, error) {
	return Parse(defaultTree)
}

// Load reads a tree from path, or the built-in tree when path is empty.
func Load(path string) (*Tree, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Tree, error) {
	var roots []Node
	if err := yaml.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if len(roots) == 0 {
		return nil, errors.New("content: tree is empty")
	}

	t := &Tree{roots: roots, index: map[string]int{}}
	var walk func(nodes []Node) error
	walk = func(nodes []Node) error {
		for _, n := range nodes {
			if strings.TrimSpace(n.ID) == "" {
				return fmt.Errorf("content: node %q has no id", n.Title)
			}
			if strings.TrimSpace(n.Title) == "" {
				return fmt.Errorf("content: node %s has no title", n.ID)
			}
			if _, dup := t.index[n.ID]; dup {
				return fmt.Errorf("content: duplicate node id %s", n.ID)
			}
			t.index[n.ID] = len(t.flat)
			t.flat = append(t.flat, n)
			if err := walk(n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(roots); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) Roots() []Node { return t.roots }

// Flatten returns every node in depth-first order.
func (t *Tree) Flatten() []Node { return t.flat }

func (t *Tree) Find(id string) (Node, error) {
	i, ok := t.index[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return t.flat[i], nil
}

// Filter returns the tree pruned to nodes matching query. A node that
// does not match is hidden together with its whole subtree, even when a
// descendant would match. An empty query returns the full tree.
func (t *Tree) Filter(query string) []Node {
	q := Fold(strings.TrimSpace(query))
	if q == "" {
		return t.roots
	}
	var prune func(nodes []Node) []Node
	prune = func(nodes []Node) []Node {
		var out []Node
		for _, n := range nodes {
			if !n.matches(q) {
				continue
			}
			n.Children = prune(n.Children)
			out = append(out, n)
		}
		return out
	}
	return prune(t.roots)
}

// Matches reports whether query occurs in the title or any of the KPI,
// insight, example or solution lines, ignoring case and accents.
func (n Node) Matches(query string) bool {
	q := Fold(strings.TrimSpace(query))
	return q == "" || n.matches(q)
}

// MatchingLine returns the first text line containing query, or the
// title when only the title matches.
func (n Node) MatchingLine(query string) string {
	q := Fold(strings.TrimSpace(query))
	for _, list := range [][]string{n.KPIs, n.Insights, n.Examples, n.Solutions} {
		for _, s := range list {
			if strings.Contains(Fold(s), q) {
				return s
			}
		}
	}
	return n.Title
}

func (n Node) matches(foldedQuery string) bool {
	if strings.Contains(Fold(n.Title), foldedQuery) {
		return true
	}
	for _, list := range [][]string{n.KPIs, n.Insights, n.Examples, n.Solutions} {
		for _, s := range list {
			if strings.Contains(Fold(s), foldedQuery) {
				return true
			}
		}
	}
	return false
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// SectionText is the copyable summary of one section.
func SectionText(n Node) string {
	parts := []string{"# " + n.Title}
	for _, section := range []struct {
		label string
		items []string
	}{
		{"KPIs", n.KPIs},
		{"Insights", n.Insights},
		{"Exemplos", n.Examples},
		{"Soluções", n.Solutions},
	} {
		if len(section.items) > 0 {
			parts = append(parts, section.label+":\n- "+strings.Join(section.items, "\n- "))
		}
	}
	return strings.Join(parts, "\n\n")
}

// TaskPrompt is the planning prompt offered for a section.
func TaskPrompt(n Node) string {
	return "Atue como PM de agência. Crie um plano de execução detalhado para: " + n.Title +
		". Inclua checklists, KPIs, riscos e cronograma."
}

// Outline renders the whole tree as an indented plain-text list.
func (t *Tree) Outline() string {
	var lines []string
	var walk func(nodes []Node, depth int)
	walk = func(nodes []Node, depth int) {
		for _, n := range nodes {
			indent := strings.Repeat("  ", depth)
			lines = append(lines, indent+"- "+n.Title)
			for _, s := range n.Insights {
				lines = append(lines, indent+"  • Insight: "+s)
			}
			for _, s := range n.Examples {
				lines = append(lines, indent+"  • Exemplo: "+s)
			}
			for _, s := range n.Solutions {
				lines = append(lines, indent+"  • Solução: "+s)
			}
			walk(n.Children, depth+1)
		}
	}
	walk(t.roots, 0)
	return strings.Join(lines, "\n")
}

// Progress counts checked entries against the number of nodes.
func (t *Tree) Progress(checked map[string]bool) Progress {
	p := Progress{Total: len(t.flat)}
	for _, v := range checked {
		if v {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}
	return p
}

// CollapseAll returns a collapsed map with every node set to collapsed.
func (t *Tree) CollapseAll(collapsed bool) map[string]bool {
	out := make(map[string]bool, len(t.flat))
	for _, n := range t.flat {
		out[n.ID] = collapsed
	}
	return out
}
