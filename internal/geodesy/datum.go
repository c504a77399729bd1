package geodesy

// Datum describes the reference ellipsoid that gives projected coordinates
// their real-world scale. Only the semi-major axis participates in the
// spherical projection math used here; the name is carried for headers and
// diagnostics.
type Datum struct {
	Name          string
	SemiMajorAxis float64 // meters
}

// WGS84 returns the WGS84 datum.
func WGS84() Datum {
	return Datum{Name: "WGS84", SemiMajorAxis: 6378137.0}
}
