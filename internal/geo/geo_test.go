package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/models"
)

func bay3() Room {
	return Room{
		Name: "Bay-3",
		Polygon: []models.Location{
			{Lat: 10.0000, Lng: 20.0000},
			{Lat: 10.0000, Lng: 20.0010},
			{Lat: 10.0010, Lng: 20.0010},
			{Lat: 10.0010, Lng: 20.0000},
		},
	}
}

func TestHaversine(t *testing.T) {
	a := models.Location{Lat: 0, Lng: 0}
	b := models.Location{Lat: 0, Lng: 1}
	assert.InDelta(t, 111195, Haversine(a, b), 1)
	assert.Zero(t, Haversine(a, a))
}

func TestRoomContains(t *testing.T) {
	room := bay3()
	assert.True(t, room.Contains(models.Location{Lat: 10.0005, Lng: 20.0005}))
	assert.False(t, room.Contains(models.Location{Lat: 10.0020, Lng: 20.0005}))

	circle := Room{Name: "dock", Center: &models.Location{Lat: 1, Lng: 1}, Radius: 5}
	assert.True(t, circle.Contains(models.Location{Lat: 1.00001, Lng: 1}))
	assert.False(t, circle.Contains(models.Location{Lat: 1.001, Lng: 1}))
}

func TestArrivalInsideRoomIgnoresDistance(t *testing.T) {
	rooms := NewRooms(bay3())
	target, ok := rooms.Resolve(models.Endpoint{Room: "bay-3"})
	require.True(t, ok)

	// Corner of the room is far from the centroid but inside the polygon.
	corner := models.Location{Lat: 10.00001, Lng: 20.00001}
	require.Greater(t, Haversine(corner, *target.Location), 3.0)
	assert.True(t, target.Arrived(corner, 3))
}

func TestArrivalByDistanceWithoutRoom(t *testing.T) {
	rooms := NewRooms()
	dest := models.Location{Lat: 5, Lng: 5}
	target, ok := rooms.Resolve(models.Endpoint{ID: "unknown", Location: &dest})
	require.True(t, ok)

	near := models.Location{Lat: 5.00002, Lng: 5}
	far := models.Location{Lat: 5.0001, Lng: 5}
	assert.True(t, target.Arrived(near, 3))
	assert.False(t, target.Arrived(far, 3))
}

func TestResolveUnknownEndpoint(t *testing.T) {
	_, ok := NewRooms(bay3()).Resolve(models.Endpoint{ID: "nowhere"})
	assert.False(t, ok)
}

func TestProgressClamps(t *testing.T) {
	start := models.Location{Lat: 0, Lng: 0}
	target := models.Location{Lat: 0, Lng: 0.001}
	assert.InDelta(t, 50, Progress(start, models.Location{Lat: 0, Lng: 0.0005}, target), 0.5)
	assert.Equal(t, 0.0, Progress(start, models.Location{Lat: 0, Lng: -0.001}, target))
	assert.Equal(t, 100.0, Progress(target, target, target))
}
