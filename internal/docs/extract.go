// Package docs turns uploaded requirement documents into plain text and
// splits that text into overlapping chunks.
package docs

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrUnsupported is returned for document types that cannot be extracted.
var ErrUnsupported = errors.New("unsupported document type")

// Kind is a supported document format.
type Kind string

const (
	KindText Kind = "text"
	KindPDF  Kind = "pdf"
	KindHTML Kind = "html"
)

// Detect picks the document kind from the content type, falling back to the
// file extension.
func Detect(filename, contentType string) (Kind, error) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/pdf":
			return KindPDF, nil
		case "text/html", "application/xhtml+xml":
			return KindHTML, nil
		case "text/plain", "text/markdown":
			return KindText, nil
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".html", ".htm":
		return KindHTML, nil
	case ".txt", ".md", "":
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filename)
}

// Extract returns the plain text of a document.
func Extract(kind Kind, data []byte) (string, error) {
	switch kind {
	case KindText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text document is not valid UTF-8")
		}
		return string(data), nil
	case KindPDF:
		return extractPDF(data)
	case KindHTML:
		return extractHTML(data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

// extractPDF concatenates the plain text of every page.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// extractHTML returns the visible text, one line per block element.
func extractHTML(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()

	return strings.Join(lines, "\n"), nil
}

// Text detects the kind of an uploaded file and extracts its text.
func Text(filename, contentType string, data []byte) (string, error) {
	kind, err := Detect(filename, contentType)
	if err != nil {
		return "", err
	}
	return Extract(kind, data)
}
