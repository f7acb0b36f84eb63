package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWall(t *testing.T) {
	t.Parallel()
	pts := Wall(2, 0.01, 30)
	require.Len(t, pts, 61*61)
	for _, p := range pts {
		assert.Equal(t, 2.0, p.Z)
	}
	assert.InDelta(t, -0.3, pts[0].X, 1e-12)
	assert.InDelta(t, 0.3, pts[len(pts)-1].Y, 1e-12)
}

func TestRecord(t *testing.T) {
	t.Parallel()
	r := Record(2, 1, 2, 3)
	assert.Equal(t, 2, r.Type)
	assert.Equal(t, [3]float64{1, 2, 3}, r.Position)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, r.Orientation)
}

func TestNewTestDB(t *testing.T) {
	t.Parallel()
	d := NewTestDB(t)
	v, dirty, err := d.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Positive(t, v)
}
