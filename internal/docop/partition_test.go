package docop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionFanout_MixedRadixEnumerationOrder(t *testing.T) {
	predicates := []PartitionPredicate{
		{In: []PartitionValue{{V: 1}, {V: 2}}},
		{In: []PartitionValue{{V: 10}, {V: 20}, {V: 30}}},
	}
	f := newPartitionFanout(predicates)
	require.Equal(t, 6, f.total)

	want := [][2]int{{1, 10}, {1, 20}, {1, 30}, {2, 10}, {2, 20}, {2, 30}}
	for i, w := range want {
		perm := f.permutation(i)
		require.Equal(t, w[0], perm[0].V)
		require.Equal(t, w[1], perm[1].V)
	}
}

func TestPartitionFanout_SingleEquality(t *testing.T) {
	v := PartitionValue{V: "x"}
	predicates := []PartitionPredicate{{Equals: &v}}
	f := newPartitionFanout(predicates)
	require.Equal(t, 1, f.total)
	require.Equal(t, "x", f.permutation(0)[0].V)
}
