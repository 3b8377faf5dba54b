package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_PlainText(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("hello world"), ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("got %q", text)
	}
}

func TestExtractBytes_InvalidUTF8(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte{'h', 'i', 0xff, 0xfe}, ".txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(text, "hi") {
		t.Errorf("got %q", text)
	}
	if !strings.Contains(text, "�") {
		t.Errorf("invalid bytes should be replaced, got %q", text)
	}
}

func TestExtractBytes_UnknownExtensionFallsBackToPlain(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("raw content"), ".weird")
	if err != nil {
		t.Fatal(err)
	}
	if text != "raw content" {
		t.Errorf("got %q", text)
	}
}

func TestExtract_Excel(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "refund")
	_ = f.SetCellValue("Sheet1", "B1", "policy")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	text, err := e.ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Sheet: Sheet1") {
		t.Errorf("sheet name missing from %q", text)
	}
	if !strings.Contains(text, "refund\tpolicy") {
		t.Errorf("row content missing from %q", text)
	}
}

func TestExtract_DOCX(t *testing.T) {
	docXML := `<?xml version="1.0"?><w:document><w:body>` +
		`<w:p w:rsidR="007"><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve">World</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	_, _ = w.Write([]byte(docXML))
	_ = zw.Close()

	e := NewExtractor()
	text, err := e.ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello World" {
		t.Errorf("got %q", text)
	}
}

func TestExtract_ODS(t *testing.T) {
	contentXML := `<?xml version="1.0"?><office:document-content>` +
		`<text:p text:style-name="P1">Cell one</text:p><text:span>Cell two</text:span>` +
		`</office:document-content>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("content.xml")
	_, _ = w.Write([]byte(contentXML))
	_ = zw.Close()

	e := NewExtractor()
	text, err := e.ExtractBytes(buf.Bytes(), ".ods")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Cell one") || !strings.Contains(text, "Cell two") {
		t.Errorf("got %q", text)
	}
}

func TestHTMLText(t *testing.T) {
	page := `<html><head><title>ignored</title><style>p{}</style></head>` +
		`<body><h1>Refund Policy</h1><script>var x=1;</script><p>30 days.</p></body></html>`
	text, err := HTMLText([]byte(page))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Refund Policy") || !strings.Contains(text, "30 days.") {
		t.Errorf("got %q", text)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "ignored") {
		t.Errorf("script/head content leaked into %q", text)
	}
}

func TestExtract_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.md")
	if err := os.WriteFile(path, []byte("# heading"), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	text, err := e.Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "# heading" {
		t.Errorf("got %q", text)
	}
}
