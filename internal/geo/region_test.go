package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/model"
)

func madrid(t *testing.T) *Region {
	t.Helper()
	r, err := NewRegion("madrid", 40.30, -3.90, 40.56, -3.52)
	require.NoError(t, err)
	return r
}

func TestNewRegion_Invalid(t *testing.T) {
	_, err := NewRegion("inverted", 40.56, -3.52, 40.30, -3.90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "south-west corner")

	_, err = NewRegion("bad", 95, 0, 96, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid corners")
}

func TestRegion_Contains(t *testing.T) {
	r := madrid(t)

	tests := []struct {
		name string
		p    model.LatLng
		want bool
	}{
		{"puerta del sol", model.LatLng{Lat: 40.4169, Lng: -3.7035}, true},
		{"border corner", model.LatLng{Lat: 40.30, Lng: -3.90}, true},
		{"barcelona", model.LatLng{Lat: 41.3874, Lng: 2.1686}, false},
		{"swapped lat lng", model.LatLng{Lat: -3.7035, Lng: 40.4169}, false},
		{"null island", model.LatLng{}, false},
		{"nan", model.LatLng{Lat: math.NaN(), Lng: -3.7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.p))
		})
	}
}

func TestRegion_Corners(t *testing.T) {
	r := madrid(t)
	assert.Equal(t, "madrid", r.Name())
	assert.Equal(t, model.LatLng{Lat: 40.30, Lng: -3.90}, r.SouthWest())
	assert.Equal(t, model.LatLng{Lat: 40.56, Lng: -3.52}, r.NorthEast())
}
