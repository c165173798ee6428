package util

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringSet_DeduplicatesAcrossSlices(t *testing.T) {
	ret := NewStringSet([]string{"abc", "abc"}, []string{"efg", "abc"}).Keys()
	sort.Strings(ret)
	require.Equal(t, []string{"abc", "efg"}, ret)
	require.Empty(t, NewStringSet().Keys())
}

func TestStringSet_Copy_IsIndependent(t *testing.T) {
	orig := NewStringSet([]string{"alpha", "beta", "gamma"})
	dup := orig.Copy()

	delete(orig, "alpha")
	orig["mu"] = true

	require.True(t, dup["alpha"])
	require.False(t, dup["mu"])
	require.Nil(t, StringSet(nil).Copy())
}

func TestIn(t *testing.T) {
	require.True(t, In("a", []string{"a", "b"}))
	require.False(t, In("z", []string{"a", "b"}))
	require.False(t, In("a", nil))
}
