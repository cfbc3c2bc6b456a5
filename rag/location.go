package rag

import (
	"bytes"
	"strings"
	"text/template"
)

// NoLocationsAnswer 未配置任何地点时的回答.
const NoLocationsAnswer = "I don't have office location information available right now. Please check the program website for current locations and hours."

// Location 一个办公地点或设施
type Location struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Address  string   `json:"address" yaml:"address"`
	Hours    string   `json:"hours" yaml:"hours"`
	Phone    string   `json:"phone" yaml:"phone"`
	URL      string   `json:"url" yaml:"url"`
}

var locationTemplate = template.Must(template.New("locations").Parse(
	`{{if .Matched}}Here is the location information you asked about:{{else}}I couldn't match a specific office, so here are all of our locations:{{end}}
{{range .Locations}}
{{.Name}}{{if .Address}}
  Address: {{.Address}}{{end}}{{if .Hours}}
  Hours: {{.Hours}}{{end}}{{if .Phone}}
  Phone: {{.Phone}}{{end}}{{if .URL}}
  More info: {{.URL}}{{end}}
{{end}}`))

// LocationDirectory 由配置构建的地点目录, 地点路由使用模板作答而不检索.
type LocationDirectory struct {
	locations []Location
}

// NewLocationDirectory 创建地点目录
func NewLocationDirectory(locations []Location) *LocationDirectory {
	return &LocationDirectory{locations: append([]Location(nil), locations...)}
}

// Len 返回地点数量
func (d *LocationDirectory) Len() int { return len(d.locations) }

// Lookup 返回名称或关键词出现在查询中的地点.
func (d *LocationDirectory) Lookup(query string) []Location {
	lower := strings.ToLower(query)
	var out []Location
	for _, loc := range d.locations {
		if loc.Name != "" && strings.Contains(lower, strings.ToLower(loc.Name)) {
			out = append(out, loc)
			continue
		}
		for _, kw := range loc.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, loc)
				break
			}
		}
	}
	return out
}

// Answer 渲染地点回答与来源; 无匹配时列出全部地点.
func (d *LocationDirectory) Answer(query string) (string, []Source, error) {
	if len(d.locations) == 0 {
		return NoLocationsAnswer, []Source{}, nil
	}
	matched := d.Lookup(query)
	locs := matched
	if len(locs) == 0 {
		locs = d.locations
	}

	var buf bytes.Buffer
	err := locationTemplate.Execute(&buf, struct {
		Matched   bool
		Locations []Location
	}{Matched: len(matched) > 0, Locations: locs})
	if err != nil {
		return "", nil, err
	}

	sources := make([]Source, 0, len(locs))
	for _, loc := range locs {
		if loc.URL != "" {
			sources = append(sources, Source{Document: loc.Name, URL: loc.URL})
		}
	}
	return strings.TrimSpace(buf.String()), sources, nil
}
