package model

import "sort"

// ChunkImport is a relative import inside a chunk, resolved to another chunk.
type ChunkImport struct {
	Specifier string
	ChunkID   string
}

// Chunk is a content-identified unit of code shared by two or more functions.
// Content never changes after creation; only ReferencedBy grows while
// descriptors are rewritten.
type Chunk struct {
	ID           string
	Ext          string // extension of the originating unit, e.g. ".js" or ".wasm"
	Content      []byte
	Binary       bool
	Imports      []ChunkImport
	ReferencedBy []string // function names, sorted
}

// File is the chunk's file name inside the chunk directory. It carries the
// full content id so distinct chunks never share a file.
func (c *Chunk) File() string { return c.ID + c.Ext }

// ChunkSet is the deduplicated chunk table keyed by id.
type ChunkSet struct {
	byID map[string]*Chunk
}

// NewChunkSet builds a set from chunks.
func NewChunkSet(chunks ...*Chunk) *ChunkSet {
	s := &ChunkSet{byID: make(map[string]*Chunk, len(chunks))}
	for _, c := range chunks {
		s.byID[c.ID] = c
	}
	return s
}

// Get finds a chunk by id.
func (s *ChunkSet) Get(id string) (*Chunk, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// All returns chunks sorted by id.
func (s *ChunkSet) All() []*Chunk {
	if s == nil {
		return nil
	}
	out := make([]*Chunk, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of chunks.
func (s *ChunkSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// TotalBytes sums chunk sizes.
func (s *ChunkSet) TotalBytes() int64 {
	var n int64
	for _, c := range s.All() {
		n += int64(len(c.Content))
	}
	return n
}
