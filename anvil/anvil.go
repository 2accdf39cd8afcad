// Package anvil implements the bit-exact Minecraft Java Edition Anvil
// region file format (.mca): a 32x32 grid of chunk payloads addressed
// by a fixed 8KiB header of sector offsets and timestamps.
//
// The package uses small typed helpers over a byte slice rather than
// reaching for an NBT-shaped struct-tag codec, because the region
// layer never looks inside a chunk payload.
package anvil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	kzlib "github.com/klauspost/compress/zlib"
)

const (
	// RegionSize is the number of chunks per region file side.
	RegionSize = 32
	// ChunkCount is the number of chunk slots in a region file.
	ChunkCount = RegionSize * RegionSize
	// SectorSize is the allocation granularity in bytes.
	SectorSize = 4096
	// HeaderSectors is the number of sectors reserved for the
	// location and timestamp tables.
	HeaderSectors = 2
	// DataOffset is the byte offset where chunk sectors begin.
	DataOffset = HeaderSectors * SectorSize
	// MaxSectorCount is the largest sector count a location entry can
	// hold (one byte): larger payloads are rejected with ErrDataTooLarge.
	MaxSectorCount = 255
)

// Compression identifies the codec used for one chunk's payload.
type Compression uint8

const (
	CompressionGZip Compression = 1
	CompressionZLib Compression = 2
	CompressionNone Compression = 3
)

// Errors returned by this package. Out-of-bounds coordinates and a
// corrupt region image get their own sentinels; plain IO failures are
// returned wrapped instead.
var (
	ErrFileTooSmall       = fmt.Errorf("anvil: file smaller than header")
	ErrChunkOutOfBounds   = fmt.Errorf("anvil: chunk coordinates out of bounds")
	ErrSectorPastEOF      = fmt.Errorf("anvil: sector offset past end of file")
	ErrBadLength          = fmt.Errorf("anvil: chunk payload length invalid")
	ErrUnknownCompression = fmt.Errorf("anvil: unknown compression id")
	ErrDataTooLarge       = fmt.Errorf("anvil: chunk payload exceeds 255 sectors")
)

// location is one entry of the 1024-entry location table: a 3-byte
// sector offset and a 1-byte sector count, packed into a single
// uint32 (offset<<8 | count).
type location struct {
	sectorOffset uint32
	sectorCount  uint8
}

func (l location) empty() bool { return l.sectorOffset == 0 && l.sectorCount == 0 }

func decodeLocation(v uint32) location {
	return location{sectorOffset: v >> 8, sectorCount: uint8(v)}
}

func (l location) encode() uint32 {
	return l.sectorOffset<<8 | uint32(l.sectorCount)
}

// chunkSlot holds one present chunk's decoded payload plus its
// timestamp, keyed by index = localX + localZ*32.
type chunkSlot struct {
	data        []byte // decompressed
	compression Compression
	timestamp   uint32
}

// RegionFile is an in-memory, parsed Anvil region file. It is not
// safe for concurrent use; regionio.Store serialises access per
// region with its own per-region-entry mutex.
type RegionFile struct {
	slots [ChunkCount]*chunkSlot
}

// New returns an empty region file with no chunks present; nothing
// is written to disk until a WriteChunk followed by ToBytes.
func New() *RegionFile {
	return &RegionFile{}
}

// index returns the slot index for local coordinates, validating
// bounds.
func index(localX, localZ int) (int, error) {
	if localX < 0 || localX >= RegionSize || localZ < 0 || localZ >= RegionSize {
		return 0, fmt.Errorf("%w: (%d,%d)", ErrChunkOutOfBounds, localX, localZ)
	}
	return localX + localZ*RegionSize, nil
}

// Parse decodes a complete region file image: location table,
// timestamp table, then every present chunk's compressed payload.
func Parse(data []byte) (*RegionFile, error) {
	if len(data) < DataOffset {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooSmall, len(data))
	}

	locs := make([]location, ChunkCount)
	for i := 0; i < ChunkCount; i++ {
		locs[i] = decodeLocation(binary.BigEndian.Uint32(data[i*4 : i*4+4]))
	}
	timestamps := make([]uint32, ChunkCount)
	for i := 0; i < ChunkCount; i++ {
		off := SectorSize + i*4
		timestamps[i] = binary.BigEndian.Uint32(data[off : off+4])
	}

	rf := New()
	for i, loc := range locs {
		if loc.empty() {
			continue
		}
		start := int(loc.sectorOffset) * SectorSize
		length := int(loc.sectorCount) * SectorSize
		if loc.sectorOffset < HeaderSectors || start+length > len(data) {
			return nil, fmt.Errorf("%w: slot %d offset %d", ErrSectorPastEOF, i, loc.sectorOffset)
		}
		sector := data[start : start+length]
		if len(sector) < 5 {
			return nil, fmt.Errorf("%w: slot %d truncated header", ErrBadLength, i)
		}
		payloadLen := binary.BigEndian.Uint32(sector[0:4])
		if payloadLen == 0 || int(payloadLen)-1 > len(sector)-5 {
			return nil, fmt.Errorf("%w: slot %d length %d", ErrBadLength, i, payloadLen)
		}
		compression := Compression(sector[4])
		compressed := sector[5 : 5+int(payloadLen)-1]
		raw, err := decompress(compression, compressed)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		rf.slots[i] = &chunkSlot{data: raw, compression: compression, timestamp: timestamps[i]}
	}
	return rf, nil
}

// ReadChunk returns the decompressed payload previously written for
// (localX, localZ), or (nil, false) if the slot is empty.
func (r *RegionFile) ReadChunk(localX, localZ int) ([]byte, bool, error) {
	i, err := index(localX, localZ)
	if err != nil {
		return nil, false, err
	}
	slot := r.slots[i]
	if slot == nil {
		return nil, false, nil
	}
	out := make([]byte, len(slot.data))
	copy(out, slot.data)
	return out, true, nil
}

// GetTimestamp returns the stored timestamp for a slot, or 0 if
// empty.
func (r *RegionFile) GetTimestamp(localX, localZ int) (uint32, error) {
	i, err := index(localX, localZ)
	if err != nil {
		return 0, err
	}
	if r.slots[i] == nil {
		return 0, nil
	}
	return r.slots[i].timestamp, nil
}

// WriteChunk compresses payload and stores it for (localX, localZ)
// with the given timestamp. Layout (sector assignment) is only
// materialised on ToBytes; WriteChunk itself just updates the
// in-memory slot.
func (r *RegionFile) WriteChunk(localX, localZ int, payload []byte, compression Compression, timestamp uint32) error {
	i, err := index(localX, localZ)
	if err != nil {
		return err
	}
	compressed, err := compress(compression, payload)
	if err != nil {
		return err
	}
	sectors := sectorsFor(len(compressed) + 5)
	if sectors > MaxSectorCount {
		return fmt.Errorf("%w: needs %d sectors", ErrDataTooLarge, sectors)
	}
	r.slots[i] = &chunkSlot{data: append([]byte(nil), payload...), compression: compression, timestamp: timestamp}
	return nil
}

// RemoveChunk clears the location and timestamp entries for
// (localX, localZ); the payload is reclaimed on the next ToBytes.
func (r *RegionFile) RemoveChunk(localX, localZ int) error {
	i, err := index(localX, localZ)
	if err != nil {
		return err
	}
	r.slots[i] = nil
	return nil
}

// ChunkCount returns the number of present chunk slots.
func (r *RegionFile) ChunkCount() int {
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// sectorsFor returns the smallest integer number of 4096-byte sectors
// that fit n bytes.
func sectorsFor(n int) int {
	return (n + SectorSize - 1) / SectorSize
}

// ToBytes rebuilds the complete region file image deterministically:
// present chunks are laid out in ascending slot-index order starting
// at sector HeaderSectors, each compressed payload is rewritten with
// its 5-byte header and zero-padded to a sector boundary, and the
// location/timestamp tables are rewritten to match. This yields
// identical output for a given set of present chunks regardless of
// write order.
func (r *RegionFile) ToBytes() ([]byte, error) {
	locs := make([]location, ChunkCount)
	timestamps := make([]uint32, ChunkCount)
	var body bytes.Buffer

	nextSector := uint32(HeaderSectors)
	for i, slot := range r.slots {
		if slot == nil {
			continue
		}
		compressed, err := compress(slot.compression, slot.data)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		payloadLen := uint32(len(compressed) + 1)
		sectors := sectorsFor(int(payloadLen) + 4)
		if sectors > MaxSectorCount {
			return nil, fmt.Errorf("%w: slot %d needs %d sectors", ErrDataTooLarge, i, sectors)
		}
		if sectors == 0 {
			sectors = 1
		}

		var header [5]byte
		binary.BigEndian.PutUint32(header[0:4], payloadLen)
		header[4] = byte(slot.compression)
		body.Write(header[:])
		body.Write(compressed)

		padded := sectors * SectorSize
		if pad := padded - (len(compressed) + 5); pad > 0 {
			body.Write(make([]byte, pad))
		}

		locs[i] = location{sectorOffset: nextSector, sectorCount: uint8(sectors)}
		timestamps[i] = slot.timestamp
		nextSector += uint32(sectors)
	}

	out := make([]byte, DataOffset)
	for i, loc := range locs {
		binary.BigEndian.PutUint32(out[i*4:i*4+4], loc.encode())
	}
	for i, ts := range timestamps {
		off := SectorSize + i*4
		binary.BigEndian.PutUint32(out[off:off+4], ts)
	}
	out = append(out, body.Bytes()...)

	if rem := len(out) % SectorSize; rem != 0 {
		out = append(out, make([]byte, SectorSize-rem)...)
	}
	return out, nil
}

func compress(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionGZip:
		var buf bytes.Buffer
		w := kgzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZLib:
		var buf bytes.Buffer
		w := kzlib.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return append([]byte(nil), data...), nil
	case CompressionGZip:
		r, err := kgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZLib:
		r, err := kzlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}
