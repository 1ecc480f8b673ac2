// Package crs carries just enough coordinate reference system information to
// decide whether two datasets can be processed together. It never reprojects.
package crs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/monitoring"
)

var (
	// ErrMismatch is returned when two datasets are in different CRSs.
	ErrMismatch = errors.New("spatial references differ")
	// ErrConflict is returned when two datasets share a projected zone but
	// are labelled with different CRS names.
	ErrConflict = errors.New("same projected zone under different spatial references")
)

// GeogCS is the geographic part of a CRS.
type GeogCS struct {
	Name      string
	Datum     string
	Ellipsoid string
}

// CRS is a parsed spatial reference. The zero value means "unknown".
type CRS struct {
	Name       string
	EPSG       int
	Geog       GeogCS
	Projection string // conversion signature, empty for geographic CRSs
	Compound   bool
	WKT        string
}

// IsZero reports whether nothing is known about the CRS.
func (c CRS) IsZero() bool {
	return c.Name == "" && c.EPSG == 0 && c.WKT == ""
}

func (c CRS) String() string {
	switch {
	case c.EPSG != 0:
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	case c.Name != "":
		return c.Name
	default:
		return "unknown"
	}
}

// FromEPSG returns a CRS known only by its EPSG code.
func FromEPSG(code int) CRS {
	return CRS{Name: fmt.Sprintf("EPSG:%d", code), EPSG: code}
}

// ParseName accepts "EPSG:26911", "urn:ogc:def:crs:EPSG::26911" or a WKT string.
func ParseName(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, nil
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "EPSG:") || strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:") {
		idx := strings.LastIndex(s, ":")
		code, err := strconv.Atoi(s[idx+1:])
		if err != nil {
			return CRS{}, fmt.Errorf("%w: bad EPSG reference %q", failure.ErrInput, s)
		}
		return FromEPSG(code), nil
	}
	return ParseWKT(s)
}

// ParseWKT reads a WKT1 or WKT2 definition.
func ParseWKT(wkt string) (CRS, error) {
	root, err := parseWKT(wkt)
	if err != nil {
		return CRS{}, fmt.Errorf("%w: %v", failure.ErrInput, err)
	}
	c := CRS{WKT: wkt, Name: root.name(), EPSG: authorityCode(root)}

	horizontal := root
	if root.keyword == "COMPD_CS" || root.keyword == "COMPOUNDCRS" {
		c.Compound = true
		for _, child := range root.children {
			if isHorizontal(child.keyword) {
				horizontal = child
				break
			}
		}
	}

	geog := horizontal
	if p := horizontalProjected(horizontal); p != nil {
		c.Projection = projectionSignature(p)
		geog = p.child("GEOGCS", "BASEGEOGCRS", "BASEGEODCRS", "GEODCRS", "GEOGCRS")
	}
	c.Geog = geogOf(geog)
	return c, nil
}

func isHorizontal(keyword string) bool {
	switch keyword {
	case "PROJCS", "PROJCRS", "PROJECTEDCRS", "GEOGCS", "GEOGCRS", "GEODCRS", "GEOGRAPHICCRS":
		return true
	}
	return false
}

func horizontalProjected(n *node) *node {
	switch n.keyword {
	case "PROJCS", "PROJCRS", "PROJECTEDCRS":
		return n
	}
	return nil
}

func geogOf(n *node) GeogCS {
	if n == nil {
		return GeogCS{}
	}
	g := GeogCS{Name: n.name()}
	datum := n.child("DATUM", "TRF")
	if datum == nil {
		if ens := n.child("ENSEMBLE"); ens != nil {
			datum = ens
		}
	}
	if datum != nil {
		g.Datum = normalizeName(datum.name())
		if sph := datum.child("SPHEROID", "ELLIPSOID"); sph != nil {
			g.Ellipsoid = normalizeName(sph.name())
		}
	}
	if g.Ellipsoid == "" {
		if sph := n.child("ELLIPSOID"); sph != nil {
			g.Ellipsoid = normalizeName(sph.name())
		}
	}
	return g
}

// projectionSignature identifies the conversion of a projected CRS. WKT2
// names its conversion; WKT1 only has the method and parameters, so the
// signature is the method plus its sorted parameter values.
func projectionSignature(p *node) string {
	if conv := p.child("CONVERSION"); conv != nil && conv.name() != "" {
		return normalizeName(conv.name())
	}
	proj := p.child("PROJECTION")
	if proj == nil {
		return normalizeName(p.name())
	}
	var params []string
	for _, c := range p.children {
		if c.keyword != "PARAMETER" || len(c.values) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(c.values[1], 64)
		if err != nil {
			continue
		}
		params = append(params, fmt.Sprintf("%s=%g", normalizeName(c.values[0]), v))
	}
	sort.Strings(params)
	return normalizeName(proj.name()) + "(" + strings.Join(params, ",") + ")"
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Match is the outcome of comparing two CRSs.
type Match int

const (
	Different Match = iota
	Same
	Conflict
)

func (m Match) String() string {
	switch m {
	case Same:
		return "same"
	case Conflict:
		return "conflict"
	default:
		return "different"
	}
}

// Compare decides whether two CRSs can be used together.
//
// Unknown CRSs never match. EPSG codes decide when both sides have one.
// Otherwise the geographic CS and projection must both agree; an unnamed CRS
// does not match anything else; two CRSs on the same projected zone with
// different names are a Conflict.
func Compare(a, b CRS) Match {
	if a.IsZero() || b.IsZero() {
		return Different
	}
	if a.EPSG != 0 && b.EPSG != 0 {
		if a.EPSG == b.EPSG {
			return Same
		}
		return Different
	}
	if a.Geog != (GeogCS{}) && a.Geog == b.Geog && a.Projection == b.Projection {
		return Same
	}
	if isUnnamed(a.Name) || isUnnamed(b.Name) {
		return Different
	}
	if a.Projection != "" && a.Projection == b.Projection {
		if normalizeName(a.Name) == normalizeName(b.Name) {
			return Same
		}
		return Conflict
	}
	return Different
}

func isUnnamed(name string) bool {
	n := normalizeName(name)
	return n == "" || n == "unnamed" || n == "unknown"
}

// Check compares two CRSs and returns an input error unless they match.
func Check(a, b CRS) error {
	switch m := Compare(a, b); m {
	case Same:
		monitoring.Diagf("spatial references match (%s)", a)
		return nil
	case Conflict:
		return fmt.Errorf("%w: %w: %s vs %s; reproject all data onto one spatial reference",
			failure.ErrInput, ErrConflict, a, b)
	default:
		return fmt.Errorf("%w: %w: %s vs %s", failure.ErrInput, ErrMismatch, a, b)
	}
}
