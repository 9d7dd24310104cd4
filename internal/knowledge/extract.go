package knowledge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// supportedExtensions maps file extensions to extraction strategies.
var supportedExtensions = map[string]func(string) (string, error){
	".txt":  extractPlain,
	".md":   extractPlain,
	".pdf":  extractPDF,
	".docx": extractDocx,
}

// SupportedFormat reports whether the pipeline can extract text from files
// with the given extension.
func SupportedFormat(ext string) bool {
	_, ok := supportedExtensions[strings.ToLower(ext)]
	return ok
}

// ExtractText reads the document at path and returns its plain text.
// Returns ErrUnsupported for unknown formats and ErrEmptyDocument when the
// file contains no extractable text. A corrupt file yields an error, never a
// panic.
func ExtractText(path string) (text string, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	extract, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}

	// The pdf and docx parsers can panic on malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract %s: malformed document: %v", path, r)
		}
	}()

	text, err = extract(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract %s: %w", path, ErrEmptyDocument)
	}
	return text, nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDocx(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(block.String())
			sb.WriteString("\n")
		case *docx.Table:
			sb.WriteString(block.String())
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
