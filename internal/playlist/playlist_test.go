package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_OnlyMatchingConfiguredMappingsContribute(t *testing.T) {
	mappings, err := Compile([][2]string{
		{"^City Commission", "P1"},
		{"^General Policy Committee", "P2"},
	})
	require.NoError(t, err)

	title := "General Policy Committee - Work Session"

	got := Resolve(title, mappings, map[string]string{"P1": "P1", "P2": "P2"})
	assert.Equal(t, []string{"P2"}, got)

	got = Resolve(title, mappings, map[string]string{"P1": "P1"})
	assert.Empty(t, got)
}

func TestResolve_CaseInsensitive(t *testing.T) {
	mappings, err := Compile([][2]string{{"^city commission", "P1"}})
	require.NoError(t, err)

	got := Resolve("CITY COMMISSION - Regular", mappings, map[string]string{"P1": "X1"})
	assert.Equal(t, []string{"X1"}, got)
}

func TestResolve_MultipleMatchesPreserveOrder(t *testing.T) {
	mappings, err := Compile([][2]string{
		{"Commission", "A"},
		{"Regular", "B"},
	})
	require.NoError(t, err)

	got := Resolve("City Commission - Regular", mappings, map[string]string{"A": "alpha", "B": "beta"})
	assert.Equal(t, []string{"alpha", "beta"}, got)
}

func TestResolve_NoMatches(t *testing.T) {
	mappings, err := Compile([][2]string{{"^Zoning Board", "Z"}})
	require.NoError(t, err)

	got := Resolve("City Commission - Regular", mappings, map[string]string{"Z": "zed"})
	assert.Empty(t, got)
}
