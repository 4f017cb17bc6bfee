// ABOUTME: Renders the Markdown export to a standalone HTML page with goldmark.
// ABOUTME: WriteExports writes the YAML, Markdown, and HTML exports into a directory.
package export

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389-research/kanbansync/board/core"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// ExportHTML renders the Markdown export as an HTML document. Raw HTML in
// card text is never passed through.
func ExportHTML(name string, snap core.Snapshot) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(ExportMarkdown(name, snap)), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString(name))
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.String(), nil
}

// WriteExports writes board.yaml, board.md, and board.html into dir.
func WriteExports(dir, name string, snap core.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create exports dir: %w", err)
	}

	y, err := ExportYAML(name, snap)
	if err != nil {
		return err
	}
	h, err := ExportHTML(name, snap)
	if err != nil {
		return err
	}
	files := map[string]string{
		"board.yaml": y,
		"board.md":   ExportMarkdown(name, snap),
		"board.html": h,
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
	}
	return nil
}
