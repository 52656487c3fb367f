package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("", "")
	require.NoError(t, err)
	assert.Equal(t, &Params{Page: 1, Limit: DefaultLimit, Offset: 0}, p)

	p, err = Parse("3", "10")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Offset)

	p, err = Parse("0", "1000")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxLimit, p.Limit)

	_, err = Parse("x", "")
	assert.Error(t, err)
	_, err = Parse("", "ten")
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	p, _ := Parse("2", "10")

	start, end := p.Window(25)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end = p.Window(15)
	assert.Equal(t, 10, start)
	assert.Equal(t, 15, end)

	start, end = p.Window(5)
	assert.Equal(t, 5, start)
	assert.Equal(t, 5, end)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 3, TotalPages(21, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}
