package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func distanceKm(origin, p orb.Point) float64 {
	north := (p.Lat() - origin.Lat()) * KmPerDegreeLat
	east := (p.Lon() - origin.Lon()) * KmPerDegreeLon * math.Cos(origin.Lat()*math.Pi/180)
	return math.Hypot(north, east)
}

func TestRadiiBounds(t *testing.T) {
	altitudes := []float64{-200, 0, 150, 900, 3000, 12000, 40000}
	velocities := []float64{0, 0.5, 5, 60, 120, 300}

	for _, alt := range altitudes {
		for _, vel := range velocities {
			small, big, sector := Radii(alt, vel)
			if small < 5 {
				t.Errorf("alt=%v vel=%v: expected small radius >= 5, got %v", alt, vel, small)
			}
			if big < 7 || big > 40 {
				t.Errorf("alt=%v vel=%v: expected big radius in [7, 40], got %v", alt, vel, big)
			}
			if sector < 45 || sector > 200 {
				t.Errorf("alt=%v vel=%v: expected sector in [45, 200], got %v", alt, vel, sector)
			}
		}
	}
}

func TestRadiiValues(t *testing.T) {
	small, big, sector := Radii(3000, 120)

	if small != 5 {
		t.Errorf("Expected small radius 5, got %v", small)
	}
	expectedBig := 5 * (3 + 2/433.0)
	if math.Abs(big-expectedBig) > 1e-9 {
		t.Errorf("Expected big radius %v, got %v", expectedBig, big)
	}
	if sector != 200 {
		t.Errorf("Expected sector 200, got %v", sector)
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{"Zero", 0, 0},
		{"Full turn", 360, 0},
		{"Negative", -10, 350},
		{"Several turns", 725, 5},
		{"Negative several turns", -725, 355},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAngle(tt.in); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAngleRange(t *testing.T) {
	got := AngleRange(-2.7, 2.2)
	expected := []float64{358, 359, 0, 1}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %v at %d, got %v", expected[i], i, got[i])
		}
	}

	if got := AngleRange(10, 10); len(got) != 0 {
		t.Errorf("Expected empty range, got %v", got)
	}
}

func TestDecimate(t *testing.T) {
	points := make([]orb.Point, 65)
	for i := range points {
		points[i] = orb.Point{float64(i), 0}
	}

	kept := Decimate(points)
	expected := []float64{0, 30, 60, 64}
	if len(kept) != len(expected) {
		t.Fatalf("Expected %d points, got %d", len(expected), len(kept))
	}
	for i, x := range expected {
		if kept[i].X() != x {
			t.Errorf("Expected point %v at %d, got %v", x, i, kept[i].X())
		}
	}

	// The final point is not repeated when it already falls on the step
	points = points[:61]
	if kept := Decimate(points); len(kept) != 3 {
		t.Errorf("Expected 3 points, got %d", len(kept))
	}
}

func TestNewZoneRing(t *testing.T) {
	origins := []orb.Point{{-3, 40}, {0, 0}, {151.2, -33.9}, {-120, 65}}
	altitudes := []float64{0, 300, 3000, 11000}
	velocities := []float64{0, 3, 70, 250}
	headings := []float64{-450, -90, 0, 90.5, 181, 359.9, 725}

	for _, origin := range origins {
		for _, alt := range altitudes {
			for _, vel := range velocities {
				for _, hdg := range headings {
					zone := NewZone(Kinematics{Lat: origin.Lat(), Lon: origin.Lon(), Altitude: alt, Velocity: vel, Heading: hdg})

					if len(zone.Ring) < 4 {
						t.Fatalf("Expected a non-empty ring, got %d points", len(zone.Ring))
					}
					if !zone.Ring.Closed() {
						t.Errorf("Expected closed ring for alt=%v vel=%v hdg=%v", alt, vel, hdg)
					}

					limit := zone.BigRadiusKm + zone.SmallRadiusKm
					for _, p := range zone.Ring {
						if d := distanceKm(origin, p); d > limit+1e-6 {
							t.Errorf("Point %v is %v km from origin, limit %v", p, d, limit)
						}
					}

					if !planar.RingContains(zone.Ring, origin) {
						t.Errorf("Expected origin inside zone for alt=%v vel=%v hdg=%v", alt, vel, hdg)
					}
				}
			}
		}
	}
}

func TestNewZoneForwardSector(t *testing.T) {
	zone := NewZone(Kinematics{Lat: 40.0, Lon: -3.0, Altitude: 3000, Velocity: 120, Heading: 90})

	// 13 km east sits inside the forward sector, 13 km west only has the 5 km circle
	east := orb.Point{-3.0 + 13/(KmPerDegreeLon*math.Cos(40*math.Pi/180)), 40.0}
	west := orb.Point{-3.0 - 13/(KmPerDegreeLon*math.Cos(40*math.Pi/180)), 40.0}

	if !planar.RingContains(zone.Ring, east) {
		t.Error("Expected point ahead of the aircraft inside the zone")
	}
	if planar.RingContains(zone.Ring, west) {
		t.Error("Expected point behind the aircraft outside the zone")
	}
}
