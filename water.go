package trafficview

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// buildWater converts a GeoJSON FeatureCollection of water polygons into one
// flat mesh. Only outer rings are drawn; holes (islands) are ignored.
func buildWater(data []byte, ct *CoordTransform, mat *Material) (*Node, error) {
	if !ct.HasGeo() {
		return nil, ErrNoProjection
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("trafficview: water geojson: %w", err)
	}
	var parts []*Mesh
	addRing := func(id any, ring orb.Ring) {
		pts := make([]mgl64.Vec3, 0, len(ring))
		for _, p := range ring {
			sp, err := ct.FromLatLng(LatLng{Lat: p.Lat(), Lng: p.Lon()})
			if err != nil {
				return
			}
			pts = append(pts, ct.ToRender(sp))
		}
		m, err := flatPolygon(pts, liftWater)
		if err != nil {
			logger.WithFields(logrus.Fields{"feature": id}).WithError(err).Warn("water polygon skipped")
			return
		}
		parts = append(parts, m)
	}
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				addRing(f.ID, g[0])
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if len(poly) > 0 {
					addRing(f.ID, poly[0])
				}
			}
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("trafficview: water: %w", ErrMalformedShape)
	}
	return NewMeshNode("water", MergeMeshes(parts...), mat), nil
}
