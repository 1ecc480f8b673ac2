package pipeline

import (
	"fmt"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/network"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/rasterio"
	"github.com/forestline/corridor/internal/vectorio"
)

// readLines reads a line layer and drops records that carry no usable line.
func readLines(path, layer string) (geom.Collection, error) {
	c, err := vectorio.Read(path, layer)
	if err != nil {
		return geom.Collection{}, fmt.Errorf("read lines %s: %w", path, err)
	}
	kept := c.Features[:0]
	for _, f := range c.Features {
		if f.Geometry == nil || geom.IsEmpty(f.Geometry) {
			monitoring.Opsf("lines: dropping OLnFID %d with empty geometry", f.FID)
			continue
		}
		if _, err := geom.Lines(f.Geometry); err != nil {
			monitoring.Opsf("lines: dropping OLnFID %d: %v", f.FID, err)
			continue
		}
		kept = append(kept, f)
	}
	c.Features = kept
	if len(c.Features) == 0 {
		return geom.Collection{}, failure.Inputf("%s has no line features", path)
	}
	numberLines(c.Features)
	return c, nil
}

// numberLines gives every feature a distinct OLnFID when the input carried
// none, and a BT_GROUP of 1..n when groups are absent.
func numberLines(fs []geom.Feature) {
	if len(fs) < 2 {
		return
	}
	hasFID, hasGroup := false, false
	for _, f := range fs {
		hasFID = hasFID || f.FID != 0
		hasGroup = hasGroup || f.Group != 0
	}
	for i := range fs {
		if !hasFID {
			fs[i].FID = i
		}
		if !hasGroup {
			fs[i].Group = i + 1
		}
	}
}

// prepareLines turns the input into per-line work items: multipart records
// become single lines and, when segmentLength is positive, every line is cut
// into segments.
func prepareLines(fs []geom.Feature, segmentLength, mergeThreshold float64) ([]geom.Feature, error) {
	lines, err := network.MergeMultipart(fs)
	if err != nil {
		return nil, err
	}
	if segmentLength > 0 {
		return network.SplitIntoSegments(lines, segmentLength, mergeThreshold)
	}
	// one segment per line
	segs := make(map[int]int)
	for i := range lines {
		lines[i].Seg = segs[lines[i].FID]
		segs[lines[i].FID]++
	}
	return lines, nil
}

// readCHM reads the canopy height model and warns when its spatial
// reference does not match the lines.
func readCHM(path string, lines crs.CRS) (*raster.Raster, error) {
	chm, err := rasterio.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read CHM %s: %w", path, err)
	}
	if m := crs.Compare(lines, chm.CRS); m != crs.Same {
		monitoring.Opsf("CHM %s and lines have %s spatial references (%s vs %s)", path, m, chm.CRS, lines)
	}
	return chm, nil
}

// outputLayer is one layer queued for writing.
type outputLayer struct {
	name string
	kind geom.Kind
	data geom.Collection
}

// writeLayers writes every layer to path through a single writer.
func writeLayers(path string, layers ...outputLayer) (err error) {
	w, err := vectorio.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	for _, l := range layers {
		if err := w.WriteLayer(l.name, l.kind, l.data); err != nil {
			return fmt.Errorf("write layer %s: %w", l.name, err)
		}
		monitoring.Diagf("wrote %d features to %s:%s", len(l.data.Features), path, l.name)
	}
	return nil
}
