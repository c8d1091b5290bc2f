package docstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// snapshot is the on-disk representation of the index. Chunks are written in
// insertion order so a restored store ranks ties identically to one rebuilt
// by re-ingesting the same documents in order.
type snapshot struct {
	ChunkSize    int     `json:"chunk_size"`
	ChunkOverlap int     `json:"chunk_overlap"`
	Chunks       []Chunk `json:"chunks"`
}

// Snapshot writes the current index to w as JSON.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	snap := snapshot{
		ChunkSize:    s.chunkSize,
		ChunkOverlap: s.chunkOverlap,
		Chunks:       append([]Chunk(nil), s.chunks...),
	}
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	return enc.Encode(snap)
}

// Restore replaces the store contents with a snapshot previously written by
// Snapshot. The chunking window must match the store's configuration.
func (s *Store) Restore(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.ChunkSize != s.chunkSize || snap.ChunkOverlap != s.chunkOverlap {
		return fmt.Errorf("snapshot chunking %d/%d does not match store %d/%d",
			snap.ChunkSize, snap.ChunkOverlap, s.chunkSize, s.chunkOverlap)
	}

	norms := make([]float64, len(snap.Chunks))
	for i, c := range snap.Chunks {
		norms[i] = norm(c.Embedding)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = snap.Chunks
	s.norms = norms
	return nil
}

// SaveFile snapshots the index to path, replacing any existing file.
func (s *Store) SaveFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.Snapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile restores the index from path. A missing file is not an error; the
// store simply starts empty.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return s.Restore(f)
}
