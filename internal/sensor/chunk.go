package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/banshee-data/depth-servo/internal/depth"
)

// Chunked stream datagram layout, all fields little-endian:
//
//	offset size field
//	0      2    magic 0x4446 ("DF")
//	2      4    frame sequence number
//	6      2    chunk index
//	8      2    chunk count
//	10     2    frame width
//	12     2    frame height
//	14     ...  payload (a contiguous slice of the frame's sample bytes)
//
// Every chunk except the last carries the same payload size.
const (
	chunkMagic      = 0x4446
	ChunkHeaderSize = 14
	// DefaultChunkPayload keeps datagrams under a 1500 byte MTU.
	DefaultChunkPayload = 1400
)

// ErrMalformedChunk reports a datagram that is not a valid frame chunk.
var ErrMalformedChunk = errors.New("malformed frame chunk")

// ChunkHeader is the decoded header of one datagram.
type ChunkHeader struct {
	Seq    uint32
	Index  uint16
	Count  uint16
	Width  uint16
	Height uint16
}

// ParseChunk splits a datagram into its header and payload.
func ParseChunk(b []byte) (ChunkHeader, []byte, error) {
	if len(b) < ChunkHeaderSize {
		return ChunkHeader{}, nil, fmt.Errorf("%w: %d bytes", ErrMalformedChunk, len(b))
	}
	if m := binary.LittleEndian.Uint16(b[0:2]); m != chunkMagic {
		return ChunkHeader{}, nil, fmt.Errorf("%w: bad magic %#04x", ErrMalformedChunk, m)
	}
	h := ChunkHeader{
		Seq:    binary.LittleEndian.Uint32(b[2:6]),
		Index:  binary.LittleEndian.Uint16(b[6:8]),
		Count:  binary.LittleEndian.Uint16(b[8:10]),
		Width:  binary.LittleEndian.Uint16(b[10:12]),
		Height: binary.LittleEndian.Uint16(b[12:14]),
	}
	if h.Count == 0 || h.Index >= h.Count {
		return h, nil, fmt.Errorf("%w: chunk %d of %d", ErrMalformedChunk, h.Index, h.Count)
	}
	return h, b[ChunkHeaderSize:], nil
}

// ChunkFrame splits f into datagrams of at most payload sample bytes each.
func ChunkFrame(seq uint32, f depth.DepthFrame, payload int) ([][]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if payload <= 0 {
		payload = DefaultChunkPayload
	}
	count := (len(f.Data) + payload - 1) / payload
	if count > 0xffff || f.Width > 0xffff || f.Height > 0xffff {
		return nil, fmt.Errorf("frame %dx%d too large to chunk", f.Width, f.Height)
	}

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*payload, len(f.Data))
		part := f.Data[i*payload : end]
		b := make([]byte, ChunkHeaderSize+len(part))
		binary.LittleEndian.PutUint16(b[0:2], chunkMagic)
		binary.LittleEndian.PutUint32(b[2:6], seq)
		binary.LittleEndian.PutUint16(b[6:8], uint16(i))
		binary.LittleEndian.PutUint16(b[8:10], uint16(count))
		binary.LittleEndian.PutUint16(b[10:12], uint16(f.Width))
		binary.LittleEndian.PutUint16(b[12:14], uint16(f.Height))
		copy(b[ChunkHeaderSize:], part)
		chunks = append(chunks, b)
	}
	return chunks, nil
}

// assembler rebuilds frames from chunks. Only one frame is in flight: a
// chunk of a newer sequence abandons the current one, and chunks of the
// current or older sequences arriving after completion are discarded.
type assembler struct {
	started  bool // seq is meaningful
	active   bool // a frame is being collected
	seq      uint32
	hdr      ChunkHeader
	parts    [][]byte
	received int
	size     int
}

// add stores a chunk and returns the completed frame, if any. dropped is
// true when an incomplete frame was abandoned.
func (a *assembler) add(h ChunkHeader, payload []byte) (frame []byte, hdr ChunkHeader, dropped bool) {
	if a.started {
		diff := int32(h.Seq - a.seq)
		if diff < 0 || (diff == 0 && !a.active) {
			return nil, h, false // stale
		}
		if diff == 0 && (h.Count != a.hdr.Count || h.Width != a.hdr.Width || h.Height != a.hdr.Height) {
			return nil, h, false // inconsistent with the frame in flight
		}
		if diff > 0 && a.active {
			dropped = true
			a.active = false
		}
	}
	if !a.active {
		a.started = true
		a.active = true
		a.seq = h.Seq
		a.hdr = h
		a.parts = make([][]byte, h.Count)
		a.received = 0
		a.size = 0
	}
	if a.parts[h.Index] == nil {
		a.parts[h.Index] = append([]byte(nil), payload...)
		a.received++
		a.size += len(payload)
	}
	if a.received < len(a.parts) {
		return nil, h, dropped
	}

	frame = make([]byte, 0, a.size)
	for _, p := range a.parts {
		frame = append(frame, p...)
	}
	hdr = a.hdr
	a.active = false
	a.parts = nil
	return frame, hdr, dropped
}
