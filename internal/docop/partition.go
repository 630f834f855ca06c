package docop

// partitionFanout holds the lazily-built mixed-radix enumeration state
// for a ReadDocOp's hash-partition fan-out. It is constructed once, on
// the first dispatch that needs it, from the template's HashPredicates.
type partitionFanout struct {
	// exprs[c] is the ordered list of candidate operands for hash column
	// c, length 1 for a plain equality, length k for column IN (v1..vk).
	exprs [][]PartitionValue
	// radices[c] == len(exprs[c]), precomputed so initializeNextOps stays
	// O(k) per sub-request instead of re-deriving lengths every call.
	radices []int
	total   int
}

func newPartitionFanout(predicates []PartitionPredicate) *partitionFanout {
	k := len(predicates)
	f := &partitionFanout{
		exprs:   make([][]PartitionValue, k),
		radices: make([]int, k),
		total:   1,
	}
	for c, p := range predicates {
		ops := p.operands()
		f.exprs[c] = ops
		f.radices[c] = len(ops)
		f.total *= len(ops)
	}
	return f
}

// permutation decomposes idx in mixed radix against f.radices, walking
// columns from the last (least significant — it changes fastest) to the
// first (most significant), and returns the selected operand per
// column. This is the required tie-break: permutations are enumerated
// lexicographically over leading hash columns.
func (f *partitionFanout) permutation(idx int) []PartitionValue {
	k := len(f.exprs)
	values := make([]PartitionValue, k)
	for c := k - 1; c >= 0; c-- {
		radix := f.radices[c]
		values[c] = f.exprs[c][idx%radix]
		idx /= radix
	}
	return values
}
