package trafficview

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrNoProjection is returned by geographic conversions when the network
// carries no usable projection.
var ErrNoProjection = errors.New("trafficview: network has no geographic projection")

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat, Lng float64
}

// CoordTransform maps between simulation space and render space.
//
// Render space is Y-up and right-handed, centered on the middle of the
// network boundary: sim (x, y, z) maps to (x-cx, z, -(y-cy)). Sim north is
// render -Z.
type CoordTransform struct {
	center SimPoint
	offset SimPoint
	min    SimPoint
	max    SimPoint

	toGeo   geoFunc
	fromGeo geoFunc
}

// NewCoordTransform builds the transform for a network location.
// Geographic conversion is enabled only for Mercator and UTM projections.
func NewCoordTransform(loc Location) *CoordTransform {
	b := loc.ConvBoundary
	t := &CoordTransform{
		center: SimPoint{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2},
		offset: loc.NetOffset,
		min:    SimPoint{X: b[0], Y: b[1]},
		max:    SimPoint{X: b[2], Y: b[3]},
	}
	t.toGeo, t.fromGeo = parseProjection(loc.ProjParameter)
	return t
}

// ToRender converts a simulation point to render space.
func (t *CoordTransform) ToRender(p SimPoint) mgl64.Vec3 {
	return mgl64.Vec3{p.X - t.center.X, p.Z, -(p.Y - t.center.Y)}
}

// ToRenderXY converts a planar simulation coordinate at height z.
func (t *CoordTransform) ToRenderXY(x, y, z float64) mgl64.Vec3 {
	return t.ToRender(SimPoint{X: x, Y: y, Z: z})
}

// ToSim converts a render-space point back to simulation space. The second
// result is false for non-finite input.
func (t *CoordTransform) ToSim(r mgl64.Vec3) (SimPoint, bool) {
	for _, c := range r {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return SimPoint{}, false
		}
	}
	return SimPoint{X: r[0] + t.center.X, Y: -r[2] + t.center.Y, Z: r[1]}, true
}

// InBounds reports whether p lies inside the network boundary (inclusive,
// with a small tolerance).
func (t *CoordTransform) InBounds(p SimPoint) bool {
	const eps = 1e-6
	return p.X >= t.min.X-eps && p.X <= t.max.X+eps &&
		p.Y >= t.min.Y-eps && p.Y <= t.max.Y+eps
}

// HasGeo reports whether geographic conversion is available.
func (t *CoordTransform) HasGeo() bool {
	return t.toGeo != nil
}

// ToLatLng converts a simulation point to WGS84.
func (t *CoordTransform) ToLatLng(p SimPoint) (LatLng, error) {
	if t.toGeo == nil {
		return LatLng{}, ErrNoProjection
	}
	g, err := t.toGeo(orb.Point{p.X - t.offset.X, p.Y - t.offset.Y})
	if err != nil {
		return LatLng{}, err
	}
	return LatLng{Lat: g.Lat(), Lng: g.Lon()}, nil
}

// FromLatLng converts a WGS84 coordinate to simulation space (Z = 0).
func (t *CoordTransform) FromLatLng(ll LatLng) (SimPoint, error) {
	if t.fromGeo == nil {
		return SimPoint{}, ErrNoProjection
	}
	p, err := t.fromGeo(orb.Point{ll.Lng, ll.Lat})
	if err != nil {
		return SimPoint{}, err
	}
	return SimPoint{X: p[0] + t.offset.X, Y: p[1] + t.offset.Y}, nil
}

// parseProjection recognizes "+proj=merc" and "+proj=utm +zone=N [+south]".
// Anything else (including "!") disables geographic conversion.
func parseProjection(param string) (to, from geoFunc) {
	fields := map[string]string{}
	for _, f := range strings.Fields(param) {
		f = strings.TrimPrefix(f, "+")
		k, v, _ := strings.Cut(f, "=")
		fields[k] = v
	}
	switch fields["proj"] {
	case "merc":
		return infallible(project.Mercator.ToWGS84), infallible(project.WGS84.ToMercator)
	case "utm":
		zone, err := strconv.Atoi(fields["zone"])
		if err != nil || zone < 1 || zone > 60 {
			return nil, nil
		}
		_, south := fields["south"]
		u := utmZone{zone: zone, south: south}
		return u.toWGS84, u.fromWGS84
	}
	return nil, nil
}

// geoFunc converts one planar point; lng/lat points are (lon, lat).
type geoFunc func(orb.Point) (orb.Point, error)

func infallible(p orb.Projection) geoFunc {
	return func(pt orb.Point) (orb.Point, error) { return p(pt), nil }
}

// utmZone is one fixed UTM zone. The false northing follows the zone's
// hemisphere, not the point's.
type utmZone struct {
	zone  int
	south bool
}

// utmRefZone has no zone exceptions; points are moved into it before
// projecting so the network's own zone is used regardless of longitude.
const utmRefZone = 2

func utmCentralMeridian(zone int) float64 {
	return float64(zone*6 - 183)
}

func (u utmZone) fromWGS84(p orb.Point) (orb.Point, error) {
	lng := p.Lon() - utmCentralMeridian(u.zone) + utmCentralMeridian(utmRefZone)
	x, y, zone, _, err := UTM.FromLatLon(p.Lat(), lng, !u.south)
	if err != nil {
		return orb.Point{}, fmt.Errorf("trafficview: utm zone %d: %w", u.zone, err)
	}
	if zone != utmRefZone {
		return orb.Point{}, fmt.Errorf("trafficview: longitude %.4f is outside utm zone %d", p.Lon(), u.zone)
	}
	return orb.Point{x, y}, nil
}

func (u utmZone) toWGS84(p orb.Point) (orb.Point, error) {
	lat, lng, err := UTM.ToLatLon(p[0], p[1], u.zone, "", !u.south)
	if err != nil {
		return orb.Point{}, fmt.Errorf("trafficview: utm zone %d: %w", u.zone, err)
	}
	return orb.Point{lng, lat}, nil
}
