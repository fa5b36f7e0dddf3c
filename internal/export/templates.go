package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var mindMapTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/mindmap.html")
	if err != nil {
		mindMapTemplate = template.Must(template.New("mindmap").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	mindMapTemplate = template.Must(template.New("mindmap").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for mind map rendering
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Completed   int
	Total       int
	Percent     int
	Sections    []TemplateNode
}

// TemplateNode is one node with its text already glossary-highlighted.
type TemplateNode struct {
	ID        string
	Title     template.HTML
	Tag       string
	Checked   bool
	Comment   string
	KPIs      []template.HTML
	Insights  []template.HTML
	Examples  []template.HTML
	Solutions []template.HTML
	Refs      []string
	Children  []TemplateNode
}

// RenderMindMapHTML renders the mind map template with provided data
func RenderMindMapHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := mindMapTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>{{.Completed}}/{{.Total}} ({{.Percent}}%)</p>
  {{define "node"}}<li>{{if .Checked}}&#10003; {{end}}{{.Title}}{{if .Children}}<ul>{{range .Children}}{{template "node" .}}{{end}}</ul>{{end}}</li>{{end}}
  <ul>{{range .Sections}}{{template "node" .}}{{end}}</ul>
</body>
</html>`
