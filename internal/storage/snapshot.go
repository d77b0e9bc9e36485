package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hyperjump/ruiji/internal/models"
)

// Codec selects the compression applied to MemoryStore snapshots.
type Codec string

const (
	// CodecZstd compresses snapshots with zstd (default).
	CodecZstd Codec = "zstd"
	// CodecLZ4 compresses snapshots with the LZ4 frame format.
	CodecLZ4 Codec = "lz4"
	// CodecNone writes snapshots uncompressed.
	CodecNone Codec = "none"
)

var (
	snapshotMagic = []byte("RJI1")
	zstdMagic     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic      = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCodec returns the codec named s ("" means zstd).
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecZstd:
		return CodecZstd, nil
	case CodecLZ4, CodecNone:
		return Codec(s), nil
	default:
		return "", fmt.Errorf("unknown snapshot codec: %s (supported: zstd, lz4, none)", s)
	}
}

// Save writes the store to path atomically. Format: magic (4), dimension (4), n (4),
// then per record: idLen (4), id bytes, vector (dimension*4 bytes), wrapped by the codec.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.writeSnapshot(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	m.mu.Lock()
	m.dirty = false
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) writeSnapshot(f io.Writer) error {
	var (
		w     io.Writer
		closeFn func() error
	)
	switch m.codec {
	case CodecLZ4:
		lw := lz4.NewWriter(f)
		w, closeFn = lw, lw.Close
	case CodecNone:
		w, closeFn = f, func() error { return nil }
	default:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		w, closeFn = zw, zw.Close
	}
	bw := bufio.NewWriter(w)

	m.mu.RLock()
	err := m.encode(bw)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("close %s writer: %w", m.codec, err)
	}
	return nil
}

func (m *MemoryStore) encode(w io.Writer) error {
	if _, err := w.Write(snapshotMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimension)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(encodeVector(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot from path and replaces the in-memory contents. The codec is
// detected from the file header. Dimensions must match. If the file does not exist,
// no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	var r io.Reader
	switch {
	case bytes.Equal(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case bytes.Equal(head, lz4Magic):
		r = lz4.NewReader(br)
	default:
		r = br
	}
	return m.decode(bufio.NewReader(r))
}

func (m *MemoryStore) decode(r io.Reader) error {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if !bytes.Equal(magic, snapshotMagic) {
		return fmt.Errorf("not a snapshot file")
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimension {
		return fmt.Errorf("snapshot created with another dimension: %w", models.NewDimensionError(int(dim), m.dimension))
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	// n comes from the file; grow past the first chunk only as records actually decode.
	capacity := min(int(n), 1<<16)
	ids := make([]string, 0, capacity)
	vectors := make([][]float32, 0, capacity)
	positions := make(map[string]int, capacity)
	buf := make([]byte, m.dimension*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		if idLen == 0 || idLen > maxIDLen {
			return fmt.Errorf("snapshot record %d: invalid id length %d", i, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vec, err := decodeVector(buf)
		if err != nil {
			return err
		}
		id := string(idBytes)
		if err := validateRecord(m.dimension, id, vec); err != nil {
			return fmt.Errorf("snapshot record %d: %w", i, err)
		}
		if _, ok := positions[id]; ok {
			return fmt.Errorf("snapshot record %d: %w", i, duplicate(id))
		}
		positions[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = ids
	m.vectors = vectors
	m.positions = positions
	m.dirty = false
	return nil
}
