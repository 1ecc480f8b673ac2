// Package vectorio reads and writes feature layers by file extension:
// GeoPackage (.gpkg) through internal/gpkg and GeoJSON (.geojson, .json)
// through orb/geojson.
//
// A GeoJSON file holds one layer. The first layer written through a Writer
// goes to the requested path and every further layer to a sibling file
// named <stem>_<layer>.geojson.
package vectorio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/gpkg"
	"github.com/forestline/corridor/internal/monitoring"
)

// Format is a supported vector container.
type Format int

const (
	FormatUnknown Format = iota
	FormatGeoPackage
	FormatGeoJSON
)

// maxGeoJSONSize caps GeoJSON reads.
const maxGeoJSONSize = 512 << 20

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		return FormatGeoPackage, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: unsupported vector format %q", failure.ErrInput, filepath.Ext(path))
	}
}

// Writer writes named layers into one output.
type Writer interface {
	WriteLayer(name string, kind geom.Kind, c geom.Collection) error
	Close() error
}

// Create opens a writer for path.
func Create(path string) (Writer, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	switch format {
	case FormatGeoPackage:
		g, err := gpkg.Open(path)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return &geoJSONWriter{path: path}, nil
	}
}

// Write creates path and writes a single layer to it.
func Write(path, layer string, kind geom.Kind, c geom.Collection) (err error) {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return w.WriteLayer(layer, kind, c)
}

// Read reads one layer. An empty layer selects the first (or only) one.
func Read(path, layer string) (geom.Collection, error) {
	format, err := FormatOf(path)
	if err != nil {
		return geom.Collection{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return geom.Collection{}, fmt.Errorf("%w: %v", failure.ErrInput, err)
	}
	switch format {
	case FormatGeoPackage:
		g, err := gpkg.Open(path)
		if err != nil {
			return geom.Collection{}, err
		}
		defer g.Close()
		return g.ReadLayer(layer)
	default:
		return readGeoJSONLayer(path, layer)
	}
}

// HasLayer reports whether a layer can be read from path.
func HasLayer(path, layer string) bool {
	_, err := Read(path, layer)
	return err == nil
}

// ---------------------------------------------------------------------------
// GeoJSON
// ---------------------------------------------------------------------------

type geoJSONWriter struct {
	path    string
	written int
}

// SiblingPath is where a GeoJSON writer puts a layer other than the first.
func SiblingPath(path, layer string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + layer + ext
}

func (w *geoJSONWriter) WriteLayer(name string, kind geom.Kind, c geom.Collection) error {
	path := w.path
	if w.written > 0 {
		path = SiblingPath(w.path, name)
	}
	if err := writeGeoJSON(path, name, kind, c); err != nil {
		return err
	}
	w.written++
	return nil
}

func (w *geoJSONWriter) Close() error { return nil }

func writeGeoJSON(path, name string, kind geom.Kind, c geom.Collection) error {
	fc := geojson.NewFeatureCollection()
	for i, f := range c.Features {
		if f.Geometry == nil {
			continue
		}
		fk, err := geom.KindOf(f.Geometry)
		if err != nil {
			return fmt.Errorf("%w: layer %s feature %d: %w", failure.ErrInput, name, i, err)
		}
		if kind != 0 && fk != kind && !multiOf(fk, kind) {
			return fmt.Errorf("%w: layer %s is %s, feature %d is %s", failure.ErrInput, name, kind, i, fk)
		}
		gf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Props {
			gf.Properties[k] = v
		}
		gf.Properties[geom.FieldFID] = f.FID
		gf.Properties[geom.FieldSeg] = f.Seg
		gf.Properties[geom.FieldGroup] = f.Group
		fc.Append(gf)
	}
	fc.ExtraMembers = geojson.Properties{"name": name}
	if !c.CRS.IsZero() {
		fc.ExtraMembers["crs"] = crsMember(c.CRS)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	monitoring.Diagf("geojson: wrote %d features to %s", len(fc.Features), path)
	return nil
}

func multiOf(single, multi geom.Kind) bool {
	return (single == geom.KindLineString && multi == geom.KindMultiLineString) ||
		(single == geom.KindPolygon && multi == geom.KindMultiPolygon)
}

func crsMember(c crs.CRS) map[string]interface{} {
	name := c.WKT
	if c.EPSG != 0 {
		name = fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", c.EPSG)
	}
	return map[string]interface{}{
		"type":       "name",
		"properties": map[string]interface{}{"name": name},
	}
}

func readGeoJSONLayer(path, layer string) (geom.Collection, error) {
	c, name, err := readGeoJSON(path)
	if err != nil {
		return geom.Collection{}, err
	}
	if layer == "" || layer == name || name == "" {
		return c, nil
	}
	sib := SiblingPath(path, layer)
	if _, err := os.Stat(sib); errors.Is(err, fs.ErrNotExist) {
		return geom.Collection{}, fmt.Errorf("%w: %w: %s in %s", failure.ErrInput, gpkg.ErrLayerNotFound, layer, path)
	}
	c, _, err = readGeoJSON(sib)
	return c, err
}

func readGeoJSON(path string) (geom.Collection, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return geom.Collection{}, "", fmt.Errorf("%w: %v", failure.ErrInput, err)
	}
	if info.Size() > maxGeoJSONSize {
		return geom.Collection{}, "", fmt.Errorf("%w: %s is too large (%d bytes)", failure.ErrInput, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return geom.Collection{}, "", err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return geom.Collection{}, "", fmt.Errorf("%w: parse %s: %v", failure.ErrInput, path, err)
	}

	var out geom.Collection
	if m, ok := fc.ExtraMembers["crs"].(map[string]interface{}); ok {
		if props, ok := m["properties"].(map[string]interface{}); ok {
			if name, ok := props["name"].(string); ok {
				if out.CRS, err = crs.ParseName(name); err != nil {
					return geom.Collection{}, "", err
				}
			}
		}
	}
	for _, gf := range fc.Features {
		f := geom.Feature{Geometry: gf.Geometry}
		for k, v := range gf.Properties {
			switch k {
			case geom.FieldFID:
				f.FID = jsonInt(v)
			case geom.FieldSeg:
				f.Seg = jsonInt(v)
			case geom.FieldGroup:
				f.Group = jsonInt(v)
			default:
				f.SetProp(k, v)
			}
		}
		out.Features = append(out.Features, f)
	}
	name, _ := fc.ExtraMembers["name"].(string)
	monitoring.Diagf("geojson: read %d features from %s", len(out.Features), path)
	return out, name, nil
}

func jsonInt(v interface{}) int {
	switch v := v.(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
