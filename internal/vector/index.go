package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Result is a single similarity search hit; ID is the chunk ID.
type Result struct {
	ID    string
	Score float64
}

// Index is a brute-force cosine similarity index over one document's chunk
// embeddings. The per-document population is small, so linear scan is the
// right tool; no approximate-NN structure is used.
type Index struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Index{dimensions: dimensions}, nil
}

// Add appends vectors with the given chunk IDs.
func (ix *Index) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != ix.dimensions {
			return fmt.Errorf("vector %q: %w (got %d, expected %d)", id, ErrDimensionMismatch, len(vectors[i]), ix.dimensions)
		}
		vec := make([]float32, ix.dimensions)
		copy(vec, vectors[i])
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, vec)
	}
	return nil
}

// Search returns the top-k entries by cosine similarity to query.
func (ix *Index) Search(query []float32, k int) ([]*Result, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query: %w (got %d, expected %d)", ErrDimensionMismatch, len(query), ix.dimensions)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.ids) == 0 {
		return nil, nil
	}
	scored := make([]*Result, len(ix.ids))
	for i, vec := range ix.vectors {
		score, err := Cosine(query, vec)
		if err != nil {
			return nil, err
		}
		scored[i] = &Result{ID: ix.ids[i], Score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Size returns the number of vectors in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Dimensions returns the vector dimension the index was created with.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// Save persists the index to path, creating parent directories as needed.
// Format: dimensions (4), count (4), then per entry: idLen (4), id bytes,
// vector (dimensions*4 bytes), all little-endian.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(ix.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(ix.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range ix.ids {
		idBytes := []byte(id)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := f.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := f.Write(EncodeFloat32s(ix.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// LoadIndex reads a persisted index from path. Returns os.ErrNotExist (wrapped)
// when no artifact exists, which callers treat as "build it".
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	ix, err := NewIndex(int(dim))
	if err != nil {
		return nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return nil, fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		ix.ids = append(ix.ids, string(idBytes))
		ix.vectors = append(ix.vectors, DecodeFloat32s(buf))
	}
	return ix, nil
}
