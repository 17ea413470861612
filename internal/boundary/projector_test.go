package boundary

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProjector(t *testing.T) *Projector {
	t.Helper()
	p, err := NewProjector(DefaultProjection())
	require.NoError(t, err)
	return p
}

func TestProjector_RoundTrip(t *testing.T) {
	p := newTestProjector(t)

	tests := []struct {
		name     string
		lon, lat float64
	}{
		{"london", -0.1276, 51.5072},
		{"edinburgh", -3.1883, 55.9533},
		{"belfast", -5.9301, 54.5973},
		{"penzance", -5.5371, 50.1188},
		{"lerwick", -1.1449, 60.1530},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := p.Forward(tt.lon, tt.lat)
			require.NoError(t, err)

			lon, lat, err := p.Inverse(x, y)
			require.NoError(t, err)
			assert.InDelta(t, tt.lon, lon, 1e-4)
			assert.InDelta(t, tt.lat, lat, 1e-4)
		})
	}
}

func TestProjector_ForwardIsBritishNationalGrid(t *testing.T) {
	p := newTestProjector(t)

	// Trafalgar Square sits near grid reference TQ 300 804.
	x, y, err := p.Forward(-0.1281, 51.5080)
	require.NoError(t, err)
	assert.InDelta(t, 530000, x, 2000)
	assert.InDelta(t, 180400, y, 2000)
}

func TestProjector_DistancesAreMetres(t *testing.T) {
	p := newTestProjector(t)

	// One hundredth of a degree of latitude is about 1.11 km.
	x1, y1, err := p.Forward(-1.5, 53.80)
	require.NoError(t, err)
	x2, y2, err := p.Forward(-1.5, 53.81)
	require.NoError(t, err)
	assert.InDelta(t, 1113, math.Hypot(x2-x1, y2-y1), 15)
}

func TestProjector_OutsideDomain(t *testing.T) {
	p := newTestProjector(t)

	tests := []struct {
		name     string
		lon, lat float64
	}{
		{"new york", -74.0060, 40.7128},
		{"sydney", 151.2093, -33.8688},
		{"nan", math.NaN(), 51.5},
		{"inf", 0, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.Forward(tt.lon, tt.lat)
			require.Error(t, err)

			var pe *ProjectionError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestProjector_InverseRejectsNonFinite(t *testing.T) {
	p := newTestProjector(t)

	_, _, err := p.Inverse(math.NaN(), 100)
	var pe *ProjectionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "not finite")
}

func TestProjector_ForwardFlat(t *testing.T) {
	p := newTestProjector(t)

	flat := []float64{-0.1276, 51.5072, -3.1883, 55.9533}
	require.NoError(t, p.ForwardFlat(flat, 2))
	require.NoError(t, p.InverseFlat(flat, 2))
	assert.InDelta(t, -0.1276, flat[0], 1e-4)
	assert.InDelta(t, 55.9533, flat[3], 1e-4)

	assert.Error(t, p.ForwardFlat(flat, 1))
}

func TestNewProjector_BadDefinition(t *testing.T) {
	_, err := NewProjector(ProjectionConfig{Geographic: WGS84, Planar: "+proj=nonsense"})
	assert.Error(t, err)
}
