package sdm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrCorruptDump is returned when a map dump fails integrity or header
// checks on restore.
var ErrCorruptDump = errors.New("sdm: corrupt map dump")

const dumpVersion = 1

// dumpHeader describes a patch-wise map dump. Cell payloads follow the
// header uncompressed; compression, when wanted, wraps the stream
// externally.
type dumpHeader struct {
	Version    int     `yaml:"version"`
	Resolution float64 `yaml:"resolution"`
	PatchSize  int     `yaml:"patch_size"`
	Patches    int     `yaml:"patches"`
	Digest     string  `yaml:"digest"`
}

// WriteTo dumps every allocated patch, prefixed by its index, cells in
// row-major order. Patches are written in index order so identical maps
// produce identical dumps.
func (c *Container[T]) WriteTo(w io.Writer) (int64, error) {
	indices := make([]PatchIndex, 0, len(c.patches))
	for pi := range c.patches {
		indices = append(indices, pi)
	}
	sort.Slice(indices, func(i, j int) bool {
		if indices[i].Y != indices[j].Y {
			return indices[i].Y < indices[j].Y
		}
		return indices[i].X < indices[j].X
	})

	var body bytes.Buffer
	for _, pi := range indices {
		if err := binary.Write(&body, binary.LittleEndian, pi.X); err != nil {
			return 0, errors.Wrap(err, "sdm: write patch index")
		}
		if err := binary.Write(&body, binary.LittleEndian, pi.Y); err != nil {
			return 0, errors.Wrap(err, "sdm: write patch index")
		}
		if err := binary.Write(&body, binary.LittleEndian, c.patches[pi].cells); err != nil {
			return 0, errors.Wrap(err, "sdm: write patch cells")
		}
	}

	sum := sha256.Sum256(body.Bytes())
	header, err := yaml.Marshal(dumpHeader{
		Version:    dumpVersion,
		Resolution: c.resolution,
		PatchSize:  int(c.patchSize),
		Patches:    len(indices),
		Digest:     base58.Encode(sum[:]),
	})
	if err != nil {
		return 0, errors.Wrap(err, "sdm: marshal dump header")
	}

	var n int64
	if err := binary.Write(w, binary.LittleEndian, uint32(len(header))); err != nil {
		return n, errors.Wrap(err, "sdm: write header length")
	}
	n += 4
	hn, err := w.Write(header)
	n += int64(hn)
	if err != nil {
		return n, errors.Wrap(err, "sdm: write header")
	}
	bn, err := w.Write(body.Bytes())
	n += int64(bn)
	if err != nil {
		return n, errors.Wrap(err, "sdm: write body")
	}
	return n, nil
}

// ReadFrom restores a dump produced by WriteTo, replacing the container
// contents. The dump must match the container's resolution and patch
// size.
func (c *Container[T]) ReadFrom(r io.Reader) (int64, error) {
	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return 0, errors.Wrap(err, "sdm: read header length")
	}
	n := int64(4)

	headerBytes := make([]byte, headerLen)
	hn, err := io.ReadFull(r, headerBytes)
	n += int64(hn)
	if err != nil {
		return n, errors.Wrap(err, "sdm: read header")
	}
	var header dumpHeader
	if err := yaml.Unmarshal(headerBytes, &header); err != nil {
		return n, errors.Wrap(ErrCorruptDump, "bad header")
	}
	if header.Version != dumpVersion {
		return n, errors.Wrapf(ErrCorruptDump, "unsupported version %d", header.Version)
	}
	if header.Resolution != c.resolution || header.PatchSize != int(c.patchSize) {
		return n, errors.Wrap(ErrBadConfiguration, "dump geometry mismatch")
	}

	body, err := io.ReadAll(r)
	n += int64(len(body))
	if err != nil {
		return n, errors.Wrap(err, "sdm: read body")
	}
	sum := sha256.Sum256(body)
	if base58.Encode(sum[:]) != header.Digest {
		return n, errors.Wrap(ErrCorruptDump, "digest mismatch")
	}

	patches := make(map[PatchIndex]*patch[T], header.Patches)
	buf := bytes.NewReader(body)
	for i := 0; i < header.Patches; i++ {
		var pi PatchIndex
		if err := binary.Read(buf, binary.LittleEndian, &pi.X); err != nil {
			return n, errors.Wrap(ErrCorruptDump, "truncated patch index")
		}
		if err := binary.Read(buf, binary.LittleEndian, &pi.Y); err != nil {
			return n, errors.Wrap(ErrCorruptDump, "truncated patch index")
		}
		p := &patch[T]{cells: make([]T, c.patchSize*c.patchSize)}
		if err := binary.Read(buf, binary.LittleEndian, p.cells); err != nil {
			return n, errors.Wrap(ErrCorruptDump, "truncated patch cells")
		}
		patches[pi] = p
	}

	c.patches = patches
	c.last = nil
	return n, nil
}

// WriteTo dumps the occupancy grid patch-wise.
func (m *OccupancyMap) WriteTo(w io.Writer) (int64, error) {
	return m.grid.WriteTo(w)
}

// ReadFrom restores an occupancy grid dump.
func (m *OccupancyMap) ReadFrom(r io.Reader) (int64, error) {
	return m.grid.ReadFrom(r)
}

// WriteTo dumps the distance grid patch-wise. Dump a settled map: pending
// queue entries are not persisted.
func (m *DistanceMap) WriteTo(w io.Writer) (int64, error) {
	return m.grid.WriteTo(w)
}

// ReadFrom restores a distance grid dump.
func (m *DistanceMap) ReadFrom(r io.Reader) (int64, error) {
	return m.grid.ReadFrom(r)
}
