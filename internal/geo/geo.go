// Package geo holds the distance and geofence math used for arrival and
// collision tests.
package geo

import (
	"math"
	"strings"

	"fleet-service/internal/models"
)

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b models.Location) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Room is a named geofence: a polygon, or a center and radius.
type Room struct {
	Name    string            `yaml:"name" json:"name"`
	Polygon []models.Location `yaml:"polygon,omitempty" json:"polygon,omitempty"`
	Center  *models.Location  `yaml:"center,omitempty" json:"center,omitempty"`
	Radius  float64           `yaml:"radius,omitempty" json:"radius,omitempty"`
}

// Contains reports whether p lies inside the room. Polygons take precedence
// over a center/radius pair.
func (r Room) Contains(p models.Location) bool {
	if len(r.Polygon) >= 3 {
		return pointInPolygon(p, r.Polygon)
	}
	if r.Center != nil && r.Radius > 0 {
		return Haversine(p, *r.Center) <= r.Radius
	}
	return false
}

// Anchor is the point used for distance and progress toward the room.
func (r Room) Anchor() (models.Location, bool) {
	if r.Center != nil {
		return *r.Center, true
	}
	if len(r.Polygon) == 0 {
		return models.Location{}, false
	}
	var c models.Location
	for _, v := range r.Polygon {
		c.Lat += v.Lat
		c.Lng += v.Lng
	}
	n := float64(len(r.Polygon))
	c.Lat /= n
	c.Lng /= n
	return c, true
}

// pointInPolygon is the even-odd ray casting test on lat/lng as planar coords.
func pointInPolygon(p models.Location, poly []models.Location) bool {
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			x := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Rooms indexes geofences by case-insensitive name.
type Rooms map[string]Room

func NewRooms(rooms ...Room) Rooms {
	idx := make(Rooms, len(rooms))
	for _, r := range rooms {
		idx[strings.ToLower(r.Name)] = r
	}
	return idx
}

func (rs Rooms) Lookup(name string) (Room, bool) {
	if name == "" {
		return Room{}, false
	}
	r, ok := rs[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// Target is a resolved task endpoint.
type Target struct {
	Room     *Room
	Location *models.Location
}

// Resolve turns an endpoint into a target. The room name is tried first,
// then the endpoint id as a room name, then explicit coordinates.
func (rs Rooms) Resolve(e models.Endpoint) (Target, bool) {
	var t Target
	if room, ok := rs.Lookup(e.Room); ok {
		t.Room = &room
	} else if room, ok := rs.Lookup(e.ID); ok {
		t.Room = &room
	}
	if e.Location != nil {
		loc := *e.Location
		t.Location = &loc
	} else if t.Room != nil {
		if anchor, ok := t.Room.Anchor(); ok {
			t.Location = &anchor
		}
	}
	return t, t.Room != nil || t.Location != nil
}

// Arrived applies the arrival rule: inside the room geofence, or within
// threshold meters of the target coordinate.
func (t Target) Arrived(p models.Location, threshold float64) bool {
	if t.Room != nil && t.Room.Contains(p) {
		return true
	}
	if t.Location != nil {
		return Haversine(p, *t.Location) <= threshold
	}
	return false
}

// Progress interpolates completion of the leg from start toward the target
// as a percentage in [0,100].
func Progress(start, current, target models.Location) float64 {
	total := Haversine(start, target)
	if total <= 0 {
		return 100
	}
	remaining := Haversine(current, target)
	pct := (1 - remaining/total) * 100
	return math.Max(0, math.Min(100, pct))
}
