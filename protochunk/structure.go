package protochunk

import "github.com/oriumgames/strata/chunkpos"

// StructureKey names a structure type (e.g. "minecraft:village_plains").
// The placement algorithm that decides bounding boxes and piece
// layout lives outside this package; this package only stores and
// propagates whatever a StructureStart's pieces contain.
type StructureKey string

// BoundingBox is an axis-aligned box in world block coordinates.
type BoundingBox struct {
	MinX, MinY, MinZ int
	MaxX, MaxY, MaxZ int
}

// Intersects reports whether two boxes overlap.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY &&
		b.MinZ <= o.MaxZ && b.MaxZ >= o.MinZ
}

// StructurePiece is one opaque piece of a structure's layout; only
// the (external) placement algorithm interprets Data.
type StructurePiece struct {
	ID   string
	Box  BoundingBox
	Data []byte
}

// StructureStart is a structure that originates in this chunk: a
// bounding box and the piece list the (external) placement algorithm
// produced.
type StructureStart struct {
	Box    BoundingBox
	Pieces []StructurePiece
}

// StructureInstance is a tagged union: either a local Start, or a
// Reference to the chunk where the structure actually starts.
// References never hold a strong handle to another chunk — only its
// position — because the origin chunk may not be loaded yet, and two
// chunks referencing each other would otherwise cycle.
type StructureInstance struct {
	start     *StructureStart   // non-nil iff this is a Start
	reference *chunkpos.ChunkPos // non-nil iff this is a Reference
}

// NewStart wraps a locally-originating structure.
func NewStart(s StructureStart) StructureInstance {
	return StructureInstance{start: &s}
}

// NewReference wraps a back-reference to origin.
func NewReference(origin chunkpos.ChunkPos) StructureInstance {
	return StructureInstance{reference: &origin}
}

// IsStart reports whether this instance is a local start.
func (s StructureInstance) IsStart() bool { return s.start != nil }

// Start returns the local start and true, or the zero value and false
// if this instance is a reference.
func (s StructureInstance) Start() (StructureStart, bool) {
	if s.start == nil {
		return StructureStart{}, false
	}
	return *s.start, true
}

// Reference returns the origin position and true, or the zero value
// and false if this instance is a local start.
func (s StructureInstance) Reference() (chunkpos.ChunkPos, bool) {
	if s.reference == nil {
		return chunkpos.ChunkPos{}, false
	}
	return *s.reference, true
}

// Resolve walks a Reference back to its origin's StructureStart by
// consulting lookup, which the caller wires to the live chunk map so
// resolution happens at structure-placement time. It returns false,
// unresolved, if this instance is already a Start, or if the origin
// isn't loaded (a soft failure — placement is skipped for this tick,
// not an error).
func (s StructureInstance) Resolve(key StructureKey, lookup func(chunkpos.ChunkPos) (*ProtoChunk, bool)) (StructureStart, bool) {
	origin, isRef := s.Reference()
	if !isRef {
		return StructureStart{}, false
	}
	originChunk, ok := lookup(origin)
	if !ok {
		return StructureStart{}, false
	}
	inst, ok := originChunk.StructureStarts[key]
	if !ok {
		return StructureStart{}, false
	}
	return inst.Start()
}
