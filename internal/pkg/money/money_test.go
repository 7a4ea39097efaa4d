package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "$16.50", Format(1650, "usd"))
	assert.Equal(t, "$1,650.00", Format(165000, "USD"))
	assert.Equal(t, "$0.05", Format(5, "usd"))
	assert.Equal(t, "-$1,234,567.89", Format(-123456789, "usd"))
	assert.Equal(t, "12.00 CHF", Format(1200, "chf"))
}

func TestParse(t *testing.T) {
	v, err := Parse("16.50")
	require.NoError(t, err)
	assert.Equal(t, int64(1650), v)

	v, err = Parse("1,650")
	require.NoError(t, err)
	assert.Equal(t, int64(165000), v)

	_, err = Parse("1.005")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
