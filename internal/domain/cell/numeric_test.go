package cell

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumeric_CompoundOperators(t *testing.T) {
	c := Raw[uint64](10)

	Add[uint64](c, 5)
	assert.Equal(t, uint64(15), c.Get())

	Sub[uint64](c, 3)
	assert.Equal(t, uint64(12), c.Get())

	Mul[uint64](c, 4)
	assert.Equal(t, uint64(48), c.Get())

	Rem[uint64](c, 10)
	assert.Equal(t, uint64(8), c.Get())
}

func TestNumeric_Comparisons(t *testing.T) {
	c := Raw(1000)

	assert.True(t, Greater[int](c, 999))
	assert.False(t, Greater[int](c, 1000))
	assert.True(t, Less[int](c, 1001))
	assert.True(t, Equal[int](c, 1000))
	assert.Equal(t, 0, Compare[int](c, 1000))
	assert.Equal(t, -1, Compare[int](c, 2000))
	assert.Equal(t, 1, Compare[int](c, 1))
}

func TestNumeric_UnsignedUnderflowPanics(t *testing.T) {
	c := Raw[uint64](2)

	assert.Panics(t, func() { Sub[uint64](c, 3) })
	assert.Equal(t, uint64(2), c.Get(), "failed subtraction must not store a wrapped value")
}

func TestNumeric_OverflowPanics(t *testing.T) {
	c := Raw[uint8](250)
	assert.Panics(t, func() { Add[uint8](c, 10) })
	assert.Panics(t, func() { Mul[uint8](c, 2) })

	s := Raw[int64](math.MinInt64)
	assert.Panics(t, func() { Sub[int64](s, 1) })
}

func TestNumeric_RemByZeroPanics(t *testing.T) {
	c := Raw[uint64](3)
	assert.Panics(t, func() { Rem[uint64](c, 0) })
}

func TestNumeric_SaturatingSub(t *testing.T) {
	tests := []struct {
		name      string
		start     uint64
		sub       uint64
		wantTaken uint64
		wantLeft  uint64
	}{
		{"within bounds", 10, 4, 4, 6},
		{"exact", 4, 4, 4, 0},
		{"clamped", 3, 10, 3, 0},
		{"from zero", 0, 1, 0, 0},
		{"nothing", 5, 0, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Raw(tt.start)
			taken := SaturatingSub[uint64](c, tt.sub)
			assert.Equal(t, tt.wantTaken, taken)
			assert.Equal(t, tt.wantLeft, c.Get())
		})
	}
}

func TestNumeric_SaturatingSubSigned(t *testing.T) {
	c := Raw(-3)
	assert.Equal(t, 0, SaturatingSub[int](c, 2))
	assert.Equal(t, -3, c.Get())
}
