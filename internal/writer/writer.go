package writer

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-scripts/siteextract/internal/present"
	"github.com/go-scripts/siteextract/pkg/common"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Query}}: {{.URL}}</title>
</head>
<body>
<h1>{{.Query}}</h1>
<p>Source: <a href="{{.URL}}">{{.URL}}</a> ({{.TotalPages}} pages)</p>
<p>{{.Summary}}</p>
{{.Table}}
</body>
</html>
`))

type pageData struct {
	URL        string
	Query      string
	Summary    string
	TotalPages int
	Table      template.HTML
}

// FileWriter writes crawl results to an output directory.
type FileWriter struct {
	outputDir string
}

// New creates a FileWriter, creating outputDir if needed.
func New(outputDir string) (*FileWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileWriter{outputDir: outputDir}, nil
}

// WriteResult stores res as JSON and, when it has rows, as an HTML page and
// a CSV file. It returns the paths written.
func (w *FileWriter) WriteResult(res *common.CrawlResult) ([]string, error) {
	base := w.baseName(res)

	jsonPath := filepath.Join(w.outputDir, base+".json")
	if err := writeJSON(jsonPath, res); err != nil {
		return nil, err
	}
	paths := []string{jsonPath}

	if res.ExtractedData == nil || len(res.ExtractedData.Items) == 0 || res.TableHTML == nil {
		return paths, nil
	}

	htmlPath := filepath.Join(w.outputDir, base+".html")
	if err := w.writeHTML(htmlPath, res); err != nil {
		return paths, err
	}
	paths = append(paths, htmlPath)

	csvPath := filepath.Join(w.outputDir, base+".csv")
	table := present.Format(*res.ExtractedData)
	if err := os.WriteFile(csvPath, []byte(table.CSV()+"\n"), 0644); err != nil {
		return paths, fmt.Errorf("failed to write csv: %w", err)
	}
	paths = append(paths, csvPath)

	return paths, nil
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func (w *FileWriter) writeHTML(path string, res *common.CrawlResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create html file: %w", err)
	}
	defer file.Close()

	// go-pretty already escaped the cell text
	err = pageTemplate.Execute(file, pageData{
		URL:        res.URL,
		Query:      res.Query,
		Summary:    res.Summary,
		TotalPages: res.TotalPages,
		Table:      template.HTML(*res.TableHTML),
	})
	if err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}

func (w *FileWriter) baseName(res *common.CrawlResult) string {
	name := w.sanitizeFilename(res.URL)
	if name == "" {
		name = "result"
	}
	if id := res.CrawlID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		name += "-" + id
	}
	return name
}

// sanitizeFilename creates a safe filename from a URL
func (w *FileWriter) sanitizeFilename(url string) string {
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "www.")
	url = strings.TrimRight(url, "/")

	unsafe := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " ", "&", "="}
	for _, char := range unsafe {
		url = strings.ReplaceAll(url, char, "_")
	}
	return url
}
