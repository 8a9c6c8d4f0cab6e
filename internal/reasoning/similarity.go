package reasoning

// Ratio measures the similarity of two strings as 2*M/T, where M is
// the number of characters covered by recursively matched longest
// common blocks and T is the total length of both strings. Equal
// strings score 1, disjoint strings 0.
func Ratio(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ar, br)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	i, j, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+size:], b[j+size:])
}

// longestMatch finds the longest block a[i:i+size] == b[j:j+size],
// preferring the earliest position on ties.
func longestMatch(a, b []rune) (besti, bestj, bestsize int) {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	j2len := make(map[int]int)
	for i, r := range a {
		newJ2len := make(map[int]int)
		for _, j := range b2j[r] {
			k := j2len[j-1] + 1
			newJ2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newJ2len
	}
	return besti, bestj, bestsize
}
