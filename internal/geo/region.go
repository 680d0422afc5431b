// Package geo provides the service-region bounding check applied to every coordinate
// before a consumer trusts it.
package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dinescout/internal/model"
)

// Region is an axis-aligned lat/lng box covering the service area.
// Bounds are stored in X=lng, Y=lat order.
type Region struct {
	name   string
	bounds *geom.Bounds
}

// NewRegion builds a region from its south-west and north-east corners.
func NewRegion(name string, swLat, swLng, neLat, neLng float64) (*Region, error) {
	sw := model.LatLng{Lat: swLat, Lng: swLng}
	ne := model.LatLng{Lat: neLat, Lng: neLng}
	if !sw.Valid() || !ne.Valid() {
		return nil, eris.Errorf("geo: invalid corners for region %q", name)
	}
	if swLat >= neLat || swLng >= neLng {
		return nil, eris.Errorf("geo: region %q south-west corner must be below and left of north-east", name)
	}
	return &Region{
		name:   name,
		bounds: geom.NewBounds(geom.XY).Set(swLng, swLat, neLng, neLat),
	}, nil
}

// Name returns the configured region name.
func (r *Region) Name() string { return r.name }

// Contains reports whether the point lies within the region, borders included.
func (r *Region) Contains(p model.LatLng) bool {
	if !p.Valid() {
		return false
	}
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat})
}

// SouthWest returns the lower-left corner.
func (r *Region) SouthWest() model.LatLng {
	return model.LatLng{Lat: r.bounds.Min(1), Lng: r.bounds.Min(0)}
}

// NorthEast returns the upper-right corner.
func (r *Region) NorthEast() model.LatLng {
	return model.LatLng{Lat: r.bounds.Max(1), Lng: r.bounds.Max(0)}
}
