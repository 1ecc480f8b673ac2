// Package gpkg reads and writes vector layers in OGC GeoPackage files.
//
// Only what the corridor tools exchange is supported: 2D features with
// integer, real, text and boolean attributes, one geometry column per layer.
package gpkg

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
)

// schema.sql creates the GeoPackage core tables and the mandatory
// spatial reference rows.
//
//go:embed schema.sql
var schemaSQL string

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
	geomColumn    = "geom"
	customSRSBase = 100000
)

// ErrLayerNotFound is returned when a named layer does not exist.
var ErrLayerNotFound = errors.New("layer not found")

// GeoPackage is an open GeoPackage file.
type GeoPackage struct {
	*sql.DB
	path string
}

// Open opens path, creating the file and its core tables when missing.
func Open(path string) (*GeoPackage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geopackage %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize geopackage %s: %w", path, err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d", applicationID, userVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set geopackage header: %w", err)
	}
	return &GeoPackage{DB: db, path: path}, nil
}

// Path returns the file the package was opened from.
func (g *GeoPackage) Path() string { return g.path }

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Layers lists feature tables in gpkg_contents order of creation.
func (g *GeoPackage) Layers() ([]string, error) {
	rows, err := g.Query(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// srsID returns the srs_id for c, registering it when new.
func (g *GeoPackage) srsID(tx *sql.Tx, c crs.CRS) (int32, error) {
	if c.IsZero() {
		return -1, nil
	}
	if c.EPSG != 0 {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, c.EPSG).Scan(&n); err != nil {
			return 0, err
		}
		if n == 0 {
			def := c.WKT
			if def == "" {
				def = "undefined"
			}
			if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition)
				VALUES (?, ?, 'EPSG', ?, ?)`, c.String(), c.EPSG, c.EPSG, def); err != nil {
				return 0, fmt.Errorf("register srs %s: %w", c, err)
			}
		}
		return int32(c.EPSG), nil
	}

	var id int32
	err := tx.QueryRow(`SELECT srs_id FROM gpkg_spatial_ref_sys WHERE definition = ?`, c.WKT).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err := tx.QueryRow(`SELECT MAX(?, COALESCE(MAX(srs_id) + 1, 0)) FROM gpkg_spatial_ref_sys`, customSRSBase).Scan(&id); err != nil {
		return 0, err
	}
	name := c.Name
	if name == "" {
		name = "custom"
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES (?, ?, 'NONE', ?, ?)`, name, id, id, c.WKT); err != nil {
		return 0, fmt.Errorf("register srs %s: %w", name, err)
	}
	return id, nil
}

// lookupCRS resolves an srs_id back to a CRS.
func (g *GeoPackage) lookupCRS(id int32) (crs.CRS, error) {
	if id <= 0 {
		return crs.CRS{}, nil
	}
	var org, def string
	var code int
	err := g.QueryRow(`SELECT organization, organization_coordsys_id, definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, id).
		Scan(&org, &code, &def)
	if errors.Is(err, sql.ErrNoRows) {
		return crs.CRS{}, fmt.Errorf("%w: srs_id %d not registered", failure.ErrInput, id)
	}
	if err != nil {
		return crs.CRS{}, err
	}
	out := crs.CRS{}
	if def != "" && def != "undefined" {
		if out, err = crs.ParseWKT(def); err != nil {
			return crs.CRS{}, err
		}
	}
	if strings.EqualFold(org, "EPSG") && code > 0 {
		if out.WKT == "" {
			out = crs.FromEPSG(code)
		}
		out.EPSG = code
	}
	return out, nil
}

type column struct {
	name    string
	sqlType string
}

// attributeColumns collects every property key with the SQL type of its
// first non-nil value.
func attributeColumns(fs []geom.Feature) []column {
	types := make(map[string]string)
	for _, f := range fs {
		for k, v := range f.Props {
			if _, seen := types[k]; seen || v == nil {
				continue
			}
			switch k {
			case geom.FieldFID, geom.FieldSeg, geom.FieldGroup, geomColumn, "fid":
				continue
			}
			switch v.(type) {
			case int, int32, int64, bool:
				types[k] = "INTEGER"
			case float32, float64:
				types[k] = "REAL"
			default:
				types[k] = "TEXT"
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)
	cols := []column{
		{geom.FieldFID, "INTEGER"},
		{geom.FieldSeg, "INTEGER"},
		{geom.FieldGroup, "INTEGER"},
	}
	for _, n := range names {
		cols = append(cols, column{n, types[n]})
	}
	return cols
}

func sqlValue(v interface{}) interface{} {
	switch v := v.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return 1
		}
		return 0
	case int, int32, int64, float32, float64, string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// promote wraps single geometries when the layer is declared multipart.
func promote(g orb.Geometry, kind geom.Kind) orb.Geometry {
	switch g := g.(type) {
	case orb.LineString:
		if kind == geom.KindMultiLineString {
			return orb.MultiLineString{g}
		}
	case orb.Polygon:
		if kind == geom.KindMultiPolygon {
			return orb.MultiPolygon{g}
		}
	}
	return g
}

// WriteLayer replaces layer name with the features of c. Geometries must
// match kind; single geometries are promoted for multipart kinds.
func (g *GeoPackage) WriteLayer(name string, kind geom.Kind, c geom.Collection) (err error) {
	if name == "" {
		return fmt.Errorf("%w: empty layer name", failure.ErrInput)
	}
	tx, err := g.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = dropLayer(tx, name); err != nil {
		return err
	}
	srs, err := g.srsID(tx, c.CRS)
	if err != nil {
		return err
	}

	cols := attributeColumns(c.Features)
	defs := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", geomColumn + " BLOB"}
	names := []string{geomColumn}
	marks := []string{"?"}
	for _, col := range cols {
		defs = append(defs, quoteIdent(col.name)+" "+col.sqlType)
		names = append(names, quoteIdent(col.name))
		marks = append(marks, "?")
	}
	if _, err = tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create layer %s: %w", name, err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	var bound orb.Bound
	haveBound := false
	for i, f := range c.Features {
		var blob []byte
		if f.Geometry != nil {
			gg := promote(f.Geometry, kind)
			fk, kerr := geom.KindOf(gg)
			if kerr != nil {
				return fmt.Errorf("%w: layer %s feature %d: %w", failure.ErrInput, name, i, kerr)
			}
			if fk != kind {
				return fmt.Errorf("%w: layer %s is %s, feature %d is %s", failure.ErrInput, name, kind, i, fk)
			}
			if blob, err = encodeGeometry(gg, srs); err != nil {
				return err
			}
			if haveBound {
				bound = bound.Union(gg.Bound())
			} else {
				bound, haveBound = gg.Bound(), true
			}
		}
		args := []interface{}{blob, f.FID, f.Seg, f.Group}
		for _, col := range cols[3:] {
			args = append(args, sqlValue(f.Props[col.name]))
		}
		if _, err = stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`, name, name, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], srs); err != nil {
		return fmt.Errorf("register layer %s: %w", name, err)
	}
	if _, err = tx.Exec(`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, ?, ?, 0, 0)`, name, geomColumn, kind.String(), srs); err != nil {
		return fmt.Errorf("register geometry column %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	monitoring.Diagf("gpkg: wrote %d features to %s:%s", len(c.Features), g.path, name)
	return nil
}

func dropLayer(tx *sql.Tx, name string) error {
	if _, err := tx.Exec(`DELETE FROM gpkg_geometry_columns WHERE table_name = ?`, name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM gpkg_contents WHERE table_name = ?`, name); err != nil {
		return err
	}
	_, err := tx.Exec("DROP TABLE IF EXISTS " + quoteIdent(name))
	return err
}

// LayerKind returns the declared geometry kind of a layer.
func (g *GeoPackage) LayerKind(name string) (geom.Kind, error) {
	var typ string
	err := g.QueryRow(`SELECT geometry_type_name FROM gpkg_geometry_columns WHERE table_name = ?`, name).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %w: %s", failure.ErrInput, ErrLayerNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return geom.ParseKind(strings.ToUpper(typ)), nil
}

// ReadLayer reads every feature of a layer. An empty name selects the first
// feature layer.
func (g *GeoPackage) ReadLayer(name string) (geom.Collection, error) {
	if name == "" {
		layers, err := g.Layers()
		if err != nil {
			return geom.Collection{}, err
		}
		if len(layers) == 0 {
			return geom.Collection{}, fmt.Errorf("%w: %w: %s has no feature layers", failure.ErrInput, ErrLayerNotFound, g.path)
		}
		name = layers[0]
	}

	var column string
	var srs int32
	err := g.QueryRow(`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, name).Scan(&column, &srs)
	if errors.Is(err, sql.ErrNoRows) {
		return geom.Collection{}, fmt.Errorf("%w: %w: %s", failure.ErrInput, ErrLayerNotFound, name)
	}
	if err != nil {
		return geom.Collection{}, err
	}
	ref, err := g.lookupCRS(srs)
	if err != nil {
		return geom.Collection{}, err
	}

	rows, err := g.Query("SELECT * FROM " + quoteIdent(name))
	if err != nil {
		return geom.Collection{}, fmt.Errorf("read layer %s: %w", name, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return geom.Collection{}, err
	}

	out := geom.Collection{CRS: ref}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return geom.Collection{}, err
		}
		f, err := featureFromRow(cols, vals, column)
		if err != nil {
			return geom.Collection{}, fmt.Errorf("%w: layer %s: %w", failure.ErrInput, name, err)
		}
		out.Features = append(out.Features, f)
	}
	if err := rows.Err(); err != nil {
		return geom.Collection{}, err
	}
	monitoring.Diagf("gpkg: read %d features from %s:%s", len(out.Features), g.path, name)
	return out, nil
}

func featureFromRow(cols []string, vals []interface{}, geomCol string) (geom.Feature, error) {
	var f geom.Feature
	hasFID := false
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok && c != geomCol {
			v = string(b)
		}
		switch {
		case c == geomCol:
			blob, _ := v.([]byte)
			if len(blob) == 0 {
				continue
			}
			gg, _, err := decodeGeometry(blob)
			if err != nil {
				return f, err
			}
			f.Geometry = gg
		case strings.EqualFold(c, "fid"):
			continue
		case c == geom.FieldFID:
			f.FID, hasFID = toInt(v), v != nil
		case c == geom.FieldSeg:
			f.Seg = toInt(v)
		case c == geom.FieldGroup:
			f.Group = toInt(v)
		default:
			if v != nil {
				f.SetProp(c, v)
			}
		}
	}
	if !hasFID {
		for i, c := range cols {
			if strings.EqualFold(c, "fid") {
				f.FID = toInt(vals[i])
			}
		}
	}
	return f, nil
}

func toInt(v interface{}) int {
	switch v := v.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
