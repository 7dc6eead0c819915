package core

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Geocentric transforms on the WGS-84 ellipsoid. Both take and return
// (longitude, latitude, height) ordering on the geographic side.
var (
	lonLatToXYZ = wgs84.LonLat().To(wgs84.XYZ())
	xyzToLonLat = wgs84.XYZ().To(wgs84.LonLat())
)

// Geodetic is a WGS-84 position: latitude and longitude in degrees,
// altitude in metres above the ellipsoid.
type Geodetic struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// Validate checks that the coordinates are finite and within range.
func (g Geodetic) Validate() error {
	if !isFinite(g.LatitudeDeg) || !isFinite(g.LongitudeDeg) || !isFinite(g.AltitudeM) {
		return fmt.Errorf("%w: non-finite geodetic coordinate %+v", ErrInvalidInput, g)
	}
	if g.LatitudeDeg < -90 || g.LatitudeDeg > 90 {
		return fmt.Errorf("%w: latitude %.6f out of range", ErrInvalidInput, g.LatitudeDeg)
	}
	if g.LongitudeDeg < -180 || g.LongitudeDeg > 180 {
		return fmt.Errorf("%w: longitude %.6f out of range", ErrInvalidInput, g.LongitudeDeg)
	}
	return nil
}

// GeodeticToECEF converts a geodetic position to ECEF metres.
func GeodeticToECEF(g Geodetic) Vec3 {
	x, y, z := lonLatToXYZ(g.LongitudeDeg, g.LatitudeDeg, g.AltitudeM)
	return Vec3{X: x, Y: y, Z: z}
}

// ECEFToGeodetic converts ECEF metres to a geodetic position.
func ECEFToGeodetic(v Vec3) Geodetic {
	lon, lat, h := xyzToLonLat(v.X, v.Y, v.Z)
	return Geodetic{LatitudeDeg: lat, LongitudeDeg: lon, AltitudeM: h}
}

// enuBasis returns the local east, north and up unit vectors in ECEF for
// the given geodetic position.
func enuBasis(g Geodetic) (east, north, up Vec3) {
	sinLat, cosLat := math.Sincos(g.LatitudeDeg * degToRad)
	sinLon, cosLon := math.Sincos(g.LongitudeDeg * degToRad)

	east = Vec3{X: -sinLon, Y: cosLon, Z: 0}
	north = Vec3{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat}
	up = Vec3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
	return east, north, up
}

// LineOfSight returns the ECEF unit vector pointing from the observer along
// the given azimuth (degrees clockwise from north) and zenith angle
// (degrees from the local ellipsoid normal).
func LineOfSight(observer Geodetic, azimuthDeg, zenithDeg float64) (Vec3, error) {
	if err := observer.Validate(); err != nil {
		return Vec3{}, err
	}
	if !isFinite(azimuthDeg) || !isFinite(zenithDeg) {
		return Vec3{}, fmt.Errorf("%w: non-finite look angle az=%v za=%v", ErrInvalidInput, azimuthDeg, zenithDeg)
	}
	if zenithDeg < 0 || zenithDeg > 180 {
		return Vec3{}, fmt.Errorf("%w: zenith angle %.6f out of range [0,180]", ErrInvalidInput, zenithDeg)
	}

	sinAz, cosAz := math.Sincos(azimuthDeg * degToRad)
	sinZa, cosZa := math.Sincos(zenithDeg * degToRad)

	east, north, up := enuBasis(observer)
	los := east.Scale(sinAz * sinZa).
		Add(north.Scale(cosAz * sinZa)).
		Add(up.Scale(cosZa))

	// The basis is orthonormal; renormalise to strip rounding drift.
	return los.Unit(), nil
}

// LookAngles returns the azimuth (degrees clockwise from north, [0,360)),
// zenith angle (degrees) and slant range (metres) of target as seen from
// observer. It is the inverse of LineOfSight.
func LookAngles(observer Geodetic, target Vec3) (azimuthDeg, zenithDeg, rangeM float64) {
	r := target.Sub(GeodeticToECEF(observer))
	rangeM = r.Norm()
	if rangeM == 0 {
		return 0, 0, 0
	}

	east, north, up := enuBasis(observer)
	e, n, u := r.Dot(east), r.Dot(north), r.Dot(up)

	azimuthDeg = math.Atan2(e, n) * radToDeg
	if azimuthDeg < 0 {
		azimuthDeg += 360
	}

	cosZa := u / rangeM
	if cosZa > 1 {
		cosZa = 1
	} else if cosZa < -1 {
		cosZa = -1
	}
	zenithDeg = math.Acos(cosZa) * radToDeg
	return azimuthDeg, zenithDeg, rangeM
}

// ElevationDegrees returns the elevation angle of the target above the
// observer's local horizon, in degrees. 0° = horizon, 90° = overhead.
func ElevationDegrees(observer Geodetic, target Vec3) float64 {
	_, za, rng := LookAngles(observer, target)
	if rng == 0 {
		return 90
	}
	return 90 - za
}
