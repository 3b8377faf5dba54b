// Package catalog exposes the knowledge-base document tree on disk:
// folder listings, path resolution, and upload placement.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gowows/kbserve/internal/docid"
	"github.com/gowows/kbserve/internal/models"
)

// Subfolder is one leaf directory with its documents.
type Subfolder struct {
	Name     string   `json:"name"`
	PDFs     []string `json:"pdfs"`
	PDFCount int      `json:"pdf_count"`
}

// Folder is one top-level KB directory.
type Folder struct {
	Folder     string      `json:"folder"`
	Subfolders []Subfolder `json:"subfolders"`
}

// Catalog serves document paths relative to a single KB root. Paths follow
// the folder/subfolder/file.pdf layout.
type Catalog struct {
	root string
}

// New creates a Catalog over root, creating the directory if needed.
func New(root string) (*Catalog, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create kb root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve kb root: %w", err)
	}
	return &Catalog{root: abs}, nil
}

// Root returns the absolute KB root directory.
func (c *Catalog) Root() string { return c.root }

// Folders lists every top-level folder that has at least one subfolder,
// with per-subfolder PDF listings.
func (c *Catalog) Folders() ([]Folder, error) {
	tops, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("read kb root: %w", err)
	}

	var out []Folder
	for _, top := range tops {
		if !top.IsDir() {
			continue
		}
		subs, err := os.ReadDir(filepath.Join(c.root, top.Name()))
		if err != nil {
			return nil, fmt.Errorf("read folder %s: %w", top.Name(), err)
		}
		var subfolders []Subfolder
		for _, sub := range subs {
			if !sub.IsDir() {
				continue
			}
			pdfs, err := c.listPDFs(filepath.Join(c.root, top.Name(), sub.Name()))
			if err != nil {
				return nil, err
			}
			subfolders = append(subfolders, Subfolder{
				Name:     sub.Name(),
				PDFs:     pdfs,
				PDFCount: len(pdfs),
			})
		}
		if len(subfolders) > 0 {
			out = append(out, Folder{Folder: top.Name(), Subfolders: subfolders})
		}
	}
	return out, nil
}

// ListSubfolder returns the PDFs directly under folder/subfolder.
func (c *Catalog) ListSubfolder(folder, subfolder string) ([]string, error) {
	if !validSegment(folder) || !validSegment(subfolder) {
		return nil, fmt.Errorf("%w: bad folder name", models.ErrInvalid)
	}
	dir := filepath.Join(c.root, folder, subfolder)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, folder, subfolder)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	return c.listPDFs(dir)
}

func (c *Catalog) listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	pdfs := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			pdfs = append(pdfs, e.Name())
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

// Locate resolves a client path into an absolute file path, failing fast so
// the resolver never charges a cache miss against a nonexistent document.
func (c *Catalog) Locate(relPath string) (string, error) {
	normalized := docid.Normalize(relPath)
	parts := strings.Split(normalized, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: path must be folder/subfolder/file", models.ErrInvalid)
	}
	for _, p := range parts {
		if !validSegment(p) {
			return "", fmt.Errorf("%w: bad path segment %q", models.ErrInvalid, p)
		}
	}
	abs := filepath.Join(c.root, filepath.FromSlash(normalized))
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", models.ErrNotFound, relPath)
		}
		return "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	return abs, nil
}

// SaveDocument writes an uploaded file into folder/subfolder, creating the
// directories if needed. Names are sanitized before use; the sanitized
// values are returned so callers can tell the client where the file landed.
func (c *Catalog) SaveDocument(folder, subfolder, filename string, r io.Reader) (string, string, string, error) {
	safeFolder := SanitizeName(folder)
	safeSubfolder := SanitizeName(subfolder)
	safeName := SanitizeName(filename)
	if safeFolder == "" || safeSubfolder == "" || safeName == "" {
		return "", "", "", fmt.Errorf("%w: empty name after sanitization", models.ErrInvalid)
	}

	dir := filepath.Join(c.root, safeFolder, safeSubfolder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", "", fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, safeName))
	if err != nil {
		return "", "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", "", "", fmt.Errorf("write upload: %w", err)
	}
	return safeFolder, safeSubfolder, safeName, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SanitizeName reduces a client-supplied name to a safe single path segment.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" {
		return ""
	}
	return name
}

// validSegment rejects traversal and hidden-file tricks in client paths.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." &&
		!strings.ContainsAny(s, `/\`) && !strings.HasPrefix(s, ".")
}
