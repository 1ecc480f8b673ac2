package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// ErrBadBlob is returned for geometry blobs without a valid GeoPackage header.
var ErrBadBlob = errors.New("invalid geopackage geometry blob")

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02 // envelope indicator 1 in bits 1-3
	flagEmpty        = 0x10
)

// encodeGeometry writes the GeoPackage binary header (little endian, XY
// envelope) followed by standard WKB.
func encodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	b := g.Bound()
	out := make([]byte, 8, 8+32+len(body))
	out[0], out[1], out[2] = 'G', 'P', 0
	out[3] = flagLittleEndian | flagEnvelopeXY
	binary.LittleEndian.PutUint32(out[4:], uint32(srsID))
	for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	}
	return append(out, body...), nil
}

// decodeGeometry parses a GeoPackage geometry blob. A nil geometry is
// returned for the empty flag.
func decodeGeometry(blob []byte) (orb.Geometry, int32, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, ErrBadBlob
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(blob[4:8]))

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, fmt.Errorf("%w: envelope code %d", ErrBadBlob, (flags>>1)&0x07)
	}
	if flags&flagEmpty != 0 {
		return nil, srsID, nil
	}
	if len(blob) < 8+envelope {
		return nil, 0, fmt.Errorf("%w: truncated header", ErrBadBlob)
	}
	g, err := wkb.Unmarshal(blob[8+envelope:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode wkb: %w", err)
	}
	return g, srsID, nil
}
