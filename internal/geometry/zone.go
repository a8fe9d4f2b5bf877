package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	KmPerDegreeLat = 110.574 // km per degree of latitude
	KmPerDegreeLon = 111.32  // km per degree of longitude at the equator

	decimationStep = 30
)

// Kinematics is the last known state of an aircraft
type Kinematics struct {
	Lat      float64 // degrees
	Lon      float64 // degrees
	Altitude float64 // meters
	Velocity float64 // m/s
	Heading  float64 // degrees, any sign
}

// Zone is the area an aircraft could have landed in
type Zone struct {
	SmallRadiusKm float64
	BigRadiusKm   float64
	SectorDeg     float64
	Heading       float64
	Ring          orb.Ring // closed, X = lon, Y = lat
}

// Radii returns the inner radius, forward radius and forward sector width
func Radii(altitudeM, velocityMs float64) (small, big, sector float64) {
	altKm := altitudeM / 1000
	speedKmh := velocityMs*3.6 + 1

	small = math.Max(5, altKm)
	big = math.Min(40, math.Max(7, 5*(altKm+2/speedKmh)))
	sector = math.Min(200, math.Max(45, 250*altKm-100/speedKmh))
	return small, big, sector
}

// NormalizeAngle maps any angle in degrees to [0, 360)
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleRange returns the integer degrees in [from, to) normalized to [0, 360).
// Bounds are truncated toward zero first.
func AngleRange(from, to float64) []float64 {
	start, end := int(math.Trunc(from)), int(math.Trunc(to))
	if end <= start {
		return nil
	}
	angles := make([]float64, 0, end-start)
	for a := start; a < end; a++ {
		angles = append(angles, NormalizeAngle(float64(a)))
	}
	return angles
}

// ArcPoints places one point per angle at radiusKm from origin.
// fraction is the share of a full circle the angle set covers.
func ArcPoints(origin orb.Point, radiusKm float64, angles []float64, fraction float64) []orb.Point {
	if len(angles) == 0 {
		return nil
	}

	lonScale := KmPerDegreeLon * math.Cos(origin.Lat()*math.Pi/180)
	step := 2 * math.Pi / float64(len(angles)) * fraction

	points := make([]orb.Point, 0, len(angles))
	for _, a := range angles {
		theta := step * a
		northKm := math.Cos(theta) * radiusKm
		eastKm := math.Sin(theta) * radiusKm
		points = append(points, orb.Point{
			origin.Lon() + eastKm/lonScale,
			origin.Lat() + northKm/KmPerDegreeLat,
		})
	}
	return points
}

// Decimate keeps every 30th point and the final one
func Decimate(points []orb.Point) []orb.Point {
	if len(points) == 0 {
		return nil
	}
	kept := make([]orb.Point, 0, len(points)/decimationStep+2)
	for i := 0; i < len(points); i += decimationStep {
		kept = append(kept, points[i])
	}
	if (len(points)-1)%decimationStep != 0 {
		kept = append(kept, points[len(points)-1])
	}
	return kept
}

// NewZone builds the landing search area for the given kinematics.
// The ring is the inner circle points followed by the forward sector points.
func NewZone(k Kinematics) Zone {
	small, big, sector := Radii(k.Altitude, k.Velocity)
	heading := NormalizeAngle(k.Heading)
	origin := orb.Point{k.Lon, k.Lat}

	from := heading - sector/2
	to := heading + sector/2

	sectorAngles := AngleRange(from, to)
	innerAngles := AngleRange(math.Trunc(to)-360, math.Trunc(from))

	sectorPoints := Decimate(ArcPoints(origin, big, sectorAngles, sector/360))
	innerPoints := Decimate(ArcPoints(origin, small, innerAngles, 1-sector/360))
	if len(innerPoints) > 0 {
		// First inner sample sits on the sector boundary
		innerPoints = innerPoints[1:]
	}

	ring := make(orb.Ring, 0, len(innerPoints)+len(sectorPoints)+1)
	ring = append(ring, innerPoints...)
	ring = append(ring, sectorPoints...)
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}

	return Zone{
		SmallRadiusKm: small,
		BigRadiusKm:   big,
		SectorDeg:     sector,
		Heading:       heading,
		Ring:          ring,
	}
}
