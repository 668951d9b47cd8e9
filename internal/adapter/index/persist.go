package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"newsrag/internal/domain"
)

const (
	vectorFile   = "index.vec"
	metadataFile = "index.meta.json"

	// formatVersion 2 adds the metadata checksum to the vector header.
	formatVersion = 2
	headerSize    = 4 + 4*4
)

var magic = [4]byte{'N', 'R', 'V', 'I'}

// Save writes the current snapshot as a vector file and a metadata file.
// Each half is written to a temp file and renamed into place. The vector
// header carries a checksum of the metadata file, so a pair left half
// renamed by a crash is rejected on Load. Without a directory the index
// lives in memory only and Save does nothing.
func (m *Manager) Save() error {
	if m.opts.Dir == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.current.Load()
	if err := m.save(snap); err != nil {
		m.logger.Error("index save failed", "dir", m.opts.Dir, "error", err)
		return fmt.Errorf("save index: %w: %w", domain.ErrPersistence, err)
	}
	m.logger.Info("index saved", "dir", m.opts.Dir, "vectors", snap.count())
	return nil
}

func (m *Manager) save(snap *snapshot) error {
	if err := os.MkdirAll(m.opts.Dir, 0755); err != nil {
		return err
	}

	entries := snap.entries
	if entries == nil {
		entries = []domain.IndexEntry{}
	}
	meta, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	vecTmp, err := writeTemp(m.opts.Dir, vectorFile, func(w io.Writer) error {
		return writeVectors(w, snap, crc32.ChecksumIEEE(meta))
	})
	if err != nil {
		return err
	}
	metaTmp, err := writeTemp(m.opts.Dir, metadataFile, func(w io.Writer) error {
		_, err := w.Write(meta)
		return err
	})
	if err != nil {
		os.Remove(vecTmp)
		return err
	}

	if err := os.Rename(vecTmp, filepath.Join(m.opts.Dir, vectorFile)); err != nil {
		os.Remove(vecTmp)
		os.Remove(metaTmp)
		return err
	}
	if err := os.Rename(metaTmp, filepath.Join(m.opts.Dir, metadataFile)); err != nil {
		os.Remove(metaTmp)
		return err
	}
	return nil
}

// Load replaces the current snapshot with the saved pair. If either half is
// missing, unreadable, or disagrees with the other, the index is reset to
// empty and ErrPersistence is returned.
func (m *Manager) Load() error {
	if m.opts.Dir == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.load()
	if err != nil {
		m.current.Store(m.emptySnapshot())
		m.logger.Error("index load failed, reset to empty", "dir", m.opts.Dir, "error", err)
		return fmt.Errorf("load index: %w: %w", domain.ErrPersistence, err)
	}

	m.current.Store(snap)
	m.logger.Info("index loaded", "dir", m.opts.Dir, "vectors", snap.count())
	return nil
}

func (m *Manager) load() (*snapshot, error) {
	vf, err := os.Open(filepath.Join(m.opts.Dir, vectorFile))
	if err != nil {
		return nil, err
	}
	defer vf.Close()

	info, err := vf.Stat()
	if err != nil {
		return nil, err
	}

	hdr, vectors, err := readVectors(bufio.NewReader(vf), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vectorFile, err)
	}

	data, err := os.ReadFile(filepath.Join(m.opts.Dir, metadataFile))
	if err != nil {
		return nil, err
	}
	if sum := crc32.ChecksumIEEE(data); sum != hdr.metaChecksum {
		return nil, fmt.Errorf("pair mismatch: %s checksum %08x, %s expects %08x", metadataFile, sum, vectorFile, hdr.metaChecksum)
	}
	var entries []domain.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%s: %w", metadataFile, err)
	}

	if len(entries) != len(vectors) {
		return nil, fmt.Errorf("pair mismatch: %d vectors, %d metadata entries", len(vectors), len(entries))
	}
	if len(vectors) == 0 {
		return m.emptySnapshot(), nil
	}
	if m.opts.Dimension > 0 && hdr.dim != m.opts.Dimension {
		return nil, fmt.Errorf("saved dim %d, index expects %d: %w", hdr.dim, m.opts.Dimension, domain.ErrDimensionMismatch)
	}
	return m.newSnapshot(vectors, entries)
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

type vectorHeader struct {
	dim          int
	count        int
	metaChecksum uint32
}

// writeVectors emits: magic, then version, dim, count and the metadata
// checksum (uint32 LE), then count*dim little-endian float32 values.
func writeVectors(w io.Writer, snap *snapshot, metaChecksum uint32) error {
	header := []uint32{formatVersion, uint32(snap.dim), uint32(snap.count()), metaChecksum}
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	buf := make([]byte, 4*snap.dim)
	for _, v := range snap.vectors {
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// readVectors decodes a vector file of the given size. The header must
// account for the size exactly before anything is allocated from it.
func readVectors(r io.Reader, size int64) (vectorHeader, [][]float32, error) {
	var hdr vectorHeader
	if size < headerSize {
		return hdr, nil, fmt.Errorf("file is %d bytes, shorter than the header", size)
	}

	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return hdr, nil, err
	}
	if got != magic {
		return hdr, nil, fmt.Errorf("bad magic %q", got[:])
	}

	var raw [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return hdr, nil, err
	}
	if raw[0] != formatVersion {
		return hdr, nil, fmt.Errorf("unsupported format version %d", raw[0])
	}
	hdr = vectorHeader{dim: int(raw[1]), count: int(raw[2]), metaChecksum: raw[3]}
	if hdr.dim == 0 && hdr.count > 0 {
		return hdr, nil, fmt.Errorf("%d vectors of dim 0", hdr.count)
	}
	if want := headerSize + int64(raw[1])*int64(raw[2])*4; want != size {
		return hdr, nil, fmt.Errorf("header declares %d vectors of dim %d (%d bytes), file is %d bytes", hdr.count, hdr.dim, want, size)
	}

	buf := make([]byte, 4*hdr.dim)
	vectors := make([][]float32, hdr.count)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return hdr, nil, fmt.Errorf("vector %d: %w", i, err)
		}
		v := make([]float32, hdr.dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		vectors[i] = v
	}

	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n > 0 {
		return hdr, nil, errors.New("trailing bytes after vector data")
	}
	return hdr, vectors, nil
}
