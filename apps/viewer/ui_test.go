package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlock(t *testing.T) {
	x, z, err := parseBlock(" 1024 ", "-512")
	require.NoError(t, err)
	assert.Equal(t, 1024, x)
	assert.Equal(t, -512, z)

	x, z, err = parseBlock("", "")
	require.NoError(t, err)
	assert.Zero(t, x)
	assert.Zero(t, z)

	_, _, err = parseBlock("12", "1-2")
	assert.EqualError(t, err, `invalid Z coordinate "1-2"`)
}
