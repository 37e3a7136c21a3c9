package bplus

// lowerBound returns the number of keys strictly less than target.
func lowerBound(keys []Key, target Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if keys[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the number of keys less than or equal to target.
func upperBound(keys []Key, target Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if keys[mid] <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// findChildIndex picks the child of an internal node to descend into:
// children[0] holds keys < keys[0], children[i] holds [keys[i-1], keys[i]),
// children[keyNum] holds keys >= keys[keyNum-1].
func findChildIndex(n *Node, key Key) int {
	return upperBound(n.keys, key)
}

// lowerChildIndex picks the leftmost child that may still hold key. A run of
// duplicates can straddle a separator equal to key, so lookups start left of it.
func lowerChildIndex(n *Node, key Key) int {
	return lowerBound(n.keys, key)
}

// findKeyIndex returns the index of the first entry >= key in a leaf, or -1
// when key is greater than every entry (or the leaf is empty).
func findKeyIndex(n *Node, key Key) int {
	if len(n.keys) == 0 {
		return -1
	}
	i := lowerBound(n.keys, key)
	if i == len(n.keys) {
		return -1
	}
	return i
}

// childPosition returns the slot of child in parent.children, or -1.
func childPosition(parent *Node, child NodeID) int {
	for i, id := range parent.children {
		if id == child {
			return i
		}
	}
	return -1
}

// insert inserts elem at index i in slice.
func insert[T any](slice []T, i int, elem T) []T {
	slice = append(slice, elem) // grow by 1
	copy(slice[i+1:], slice[i:])
	slice[i] = elem
	return slice
}

// remove removes element at index i from slice.
func remove[T any](slice []T, i int) []T {
	copy(slice[i:], slice[i+1:])
	var zero T
	slice[len(slice)-1] = zero
	return slice[:len(slice)-1]
}
