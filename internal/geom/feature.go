package geom

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/crs"
)

// Attribute names written to and read from vector layers.
const (
	FieldFID   = "OLnFID"
	FieldSeg   = "OLnSEG"
	FieldGroup = "BT_GROUP"
)

// Feature is one vector record.
type Feature struct {
	Geometry orb.Geometry
	FID      int
	Seg      int
	Group    int
	Props    map[string]interface{}
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	out := f
	if f.Geometry != nil {
		out.Geometry = orb.Clone(f.Geometry)
	}
	if f.Props != nil {
		out.Props = make(map[string]interface{}, len(f.Props))
		for k, v := range f.Props {
			out.Props[k] = v
		}
	}
	return out
}

// WithGeometry returns a copy of f carrying g.
func (f Feature) WithGeometry(g orb.Geometry) Feature {
	out := f.Clone()
	out.Geometry = g
	return out
}

// SetProp sets an attribute, allocating Props on first use.
func (f *Feature) SetProp(key string, v interface{}) {
	if f.Props == nil {
		f.Props = make(map[string]interface{})
	}
	f.Props[key] = v
}

// Float returns a numeric attribute. ok is false when missing or not numeric.
func (f Feature) Float(key string) (float64, bool) {
	switch v := f.Props[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// SortFeatures orders features by FID then Seg.
func SortFeatures(fs []Feature) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].FID != fs[j].FID {
			return fs[i].FID < fs[j].FID
		}
		return fs[i].Seg < fs[j].Seg
	})
}

// Collection is a set of features with their spatial reference.
type Collection struct {
	Features []Feature
	CRS      crs.CRS
}
