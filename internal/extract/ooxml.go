package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DOCX and ODS are ZIP containers holding an XML body. Both extractors pull
// the text nodes with a tolerant regex rather than a full XML parse: attributes
// on runs and paragraphs vary wildly between producers and we only want the
// visible text.
const (
	docxDocumentPath = "word/document.xml"
	odsContentPath   = "content.xml"
)

var (
	// <w:t>text</w:t>, with any attributes (e.g. xml:space="preserve").
	wordTextNode = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// OpenDocument paragraph and span text nodes.
	odfTextNode = regexp.MustCompile(`<text:(?:p|span)[^>]*>([^<]*)</text:(?:p|span)>`)
)

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func joinMatches(re *regexp.Regexp, xml []byte) string {
	parts := re.FindAllSubmatch(xml, -1)
	var b strings.Builder
	for _, p := range parts {
		text := strings.TrimSpace(string(p[1]))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

// extractDOCX extracts the visible text of a .docx body.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	xml, err := readZipEntry(zr, docxDocumentPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return joinMatches(wordTextNode, xml), nil
}

// extractODS extracts cell text from an OpenDocument spreadsheet.
func extractODS(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract ODS: not a zip: %w", err)
	}
	xml, err := readZipEntry(zr, odsContentPath)
	if err != nil {
		return "", fmt.Errorf("extract ODS: %w", err)
	}
	return joinMatches(odfTextNode, xml), nil
}
