package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	args, err := parseParams([]string{"number=3", "token=0xAB=C"})
	require.NoError(t, err)
	assert.Equal(t, "3", args["number"])
	assert.Equal(t, "0xAB=C", args["token"], "只按第一个等号切分")

	_, err = parseParams([]string{"number"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=3"})
	assert.Error(t, err)
}
