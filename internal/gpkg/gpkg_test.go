package gpkg

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
)

func openTemp(t *testing.T) *GeoPackage {
	t.Helper()
	g, err := Open(filepath.Join(t.TempDir(), "out.gpkg"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

// ---------------------------------------------------------------------------
// geometry blobs
// ---------------------------------------------------------------------------

func TestGeometryBlob_Header(t *testing.T) {
	t.Parallel()

	blob, err := encodeGeometry(orb.LineString{{1, 2}, {3, 5}}, 3400)
	require.NoError(t, err)
	assert.Equal(t, []byte{'G', 'P', 0, 0x03}, blob[:4])

	g, srs, err := decodeGeometry(blob)
	require.NoError(t, err)
	assert.Equal(t, int32(3400), srs)
	assert.Equal(t, orb.LineString{{1, 2}, {3, 5}}, g)
}

func TestGeometryBlob_AllKinds(t *testing.T) {
	t.Parallel()

	shapes := []orb.Geometry{
		orb.Point{1, 2},
		orb.LineString{{0, 0}, {1, 1}},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
	}
	for _, s := range shapes {
		blob, err := encodeGeometry(s, -1)
		require.NoError(t, err)
		got, _, err := decodeGeometry(blob)
		require.NoError(t, err)
		if diff := cmp.Diff(s, got); diff != "" {
			t.Errorf("%T round trip (-want +got):\n%s", s, diff)
		}
	}
}

func TestGeometryBlob_Invalid(t *testing.T) {
	t.Parallel()

	_, _, err := decodeGeometry([]byte("XX\x00\x01\x00\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrBadBlob)
	_, _, err = decodeGeometry([]byte{'G', 'P', 0, 0x03, 0, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrBadBlob)

	g, _, err := decodeGeometry([]byte{'G', 'P', 0, 0x11, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Nil(t, g)
}

// ---------------------------------------------------------------------------
// layers
// ---------------------------------------------------------------------------

func TestWriteReadLayer(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	in := geom.Collection{CRS: crs.FromEPSG(3400)}
	f1 := geom.Feature{Geometry: orb.LineString{{0, 0}, {10, 0}}, FID: 3, Seg: 1, Group: 2}
	f1.SetProp("status", "SUCCESS")
	f1.SetProp("width", 4.5)
	f1.SetProp("count", 7)
	f2 := geom.Feature{Geometry: orb.LineString{{0, 5}, {10, 5}}, FID: 4}
	in.Features = []geom.Feature{f1, f2}

	require.NoError(t, g.WriteLayer("split_centerline", geom.KindLineString, in))

	out, err := g.ReadLayer("split_centerline")
	require.NoError(t, err)
	assert.Equal(t, crs.FromEPSG(3400), out.CRS)
	require.Len(t, out.Features, 2)

	got := out.Features[0]
	assert.Equal(t, 3, got.FID)
	assert.Equal(t, 1, got.Seg)
	assert.Equal(t, 2, got.Group)
	assert.Equal(t, f1.Geometry, got.Geometry)
	assert.Equal(t, "SUCCESS", got.Props["status"])
	w, ok := got.Float("width")
	require.True(t, ok)
	assert.InDelta(t, 4.5, w, 1e-12)
	assert.Equal(t, int64(7), got.Props["count"])

	_, hasStatus := out.Features[1].Props["status"]
	assert.False(t, hasStatus, "NULL attributes are not materialized")
}

func TestWriteLayer_ReplacesExisting(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	first := geom.Collection{Features: []geom.Feature{{Geometry: orb.Point{1, 1}, FID: 1}, {Geometry: orb.Point{2, 2}, FID: 2}}}
	second := geom.Collection{Features: []geom.Feature{{Geometry: orb.Point{3, 3}, FID: 9}}}
	require.NoError(t, g.WriteLayer("inter_points", geom.KindPoint, first))
	require.NoError(t, g.WriteLayer("inter_points", geom.KindPoint, second))

	out, err := g.ReadLayer("inter_points")
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.Equal(t, 9, out.Features[0].FID)

	layers, err := g.Layers()
	require.NoError(t, err)
	assert.Equal(t, []string{"inter_points"}, layers)
}

func TestWriteLayer_PromotesToMulti(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	poly := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 0}}}
	c := geom.Collection{Features: []geom.Feature{{Geometry: poly, FID: 1}}}
	require.NoError(t, g.WriteLayer("clean_footprint", geom.KindMultiPolygon, c))

	kind, err := g.LayerKind("clean_footprint")
	require.NoError(t, err)
	assert.Equal(t, geom.KindMultiPolygon, kind)

	out, err := g.ReadLayer("")
	require.NoError(t, err)
	assert.Equal(t, orb.MultiPolygon{poly}, out.Features[0].Geometry)
}

func TestWriteLayer_KindMismatch(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	c := geom.Collection{Features: []geom.Feature{{Geometry: orb.Point{0, 0}}}}
	err := g.WriteLayer("lines", geom.KindLineString, c)
	assert.True(t, errors.Is(err, failure.ErrInput))

	layers, err := g.Layers()
	require.NoError(t, err)
	assert.Empty(t, layers, "failed write is rolled back")
}

func TestReadLayer_Missing(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	_, err := g.ReadLayer("nope")
	assert.True(t, errors.Is(err, ErrLayerNotFound))
	assert.True(t, errors.Is(err, failure.ErrInput))

	_, err = g.ReadLayer("")
	assert.True(t, errors.Is(err, ErrLayerNotFound))
}

func TestCustomWKTRoundTrip(t *testing.T) {
	t.Parallel()

	wkt := `PROJCS["Local grid",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137,298.257222101]]],PROJECTION["Transverse_Mercator"],PARAMETER["central_meridian",-115],UNIT["Meter",1]]`
	ref, err := crs.ParseWKT(wkt)
	require.NoError(t, err)

	g := openTemp(t)
	c := geom.Collection{CRS: ref, Features: []geom.Feature{{Geometry: orb.Point{1, 1}, FID: 1}}}
	require.NoError(t, g.WriteLayer("a", geom.KindPoint, c))
	require.NoError(t, g.WriteLayer("b", geom.KindPoint, c))

	var n int
	require.NoError(t, g.QueryRow(`SELECT COUNT(*) FROM gpkg_spatial_ref_sys WHERE srs_id >= ?`, customSRSBase).Scan(&n))
	assert.Equal(t, 1, n, "identical definitions share one srs row")

	out, err := g.ReadLayer("b")
	require.NoError(t, err)
	assert.Equal(t, crs.Same, crs.Compare(ref, out.CRS))
}

func TestOpen_SetsApplicationID(t *testing.T) {
	t.Parallel()

	g := openTemp(t)
	var id, version int
	require.NoError(t, g.QueryRow(`PRAGMA application_id`).Scan(&id))
	require.NoError(t, g.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, applicationID, id)
	assert.Equal(t, userVersion, version)
}
