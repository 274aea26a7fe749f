package similarity

import "strings"

// DiffEntry is one position in a word-level comparison of expected versus
// spoken text.
type DiffEntry struct {
	Position int    `json:"position"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Status   string `json:"status"` // correct, mismatch, missing, extra
}

// WordDiff aligns the two texts word by word and reports each word as
// correct, mismatched, missing from the spoken text, or extra in it.
// Comparison ignores case and surrounding punctuation; the entries carry the
// original words.
func WordDiff(expected, actual string) []DiffEntry {
	exp := strings.Fields(expected)
	act := strings.Fields(actual)

	// Longest common subsequence over the canonical forms.
	lcs := make([][]int, len(exp)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(act)+1)
	}
	for i := len(exp) - 1; i >= 0; i-- {
		for j := len(act) - 1; j >= 0; j-- {
			if canonical(exp[i]) == canonical(act[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var entries []DiffEntry
	pos := 0
	i, j := 0, 0
	for i < len(exp) && j < len(act) {
		switch {
		case canonical(exp[i]) == canonical(act[j]):
			entries = append(entries, DiffEntry{Position: pos, Expected: exp[i], Actual: act[j], Status: "correct"})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			// Pair an unmatched expected word with an unmatched actual one
			// when neither side advances the common subsequence.
			if lcs[i+1][j+1] == lcs[i][j+1] && lcs[i+1][j+1] == lcs[i+1][j] {
				entries = append(entries, DiffEntry{Position: pos, Expected: exp[i], Actual: act[j], Status: "mismatch"})
				i++
				j++
			} else {
				entries = append(entries, DiffEntry{Position: pos, Expected: exp[i], Status: "missing"})
				i++
			}
		default:
			entries = append(entries, DiffEntry{Position: pos, Actual: act[j], Status: "extra"})
			j++
		}
		pos++
	}
	for ; i < len(exp); i++ {
		entries = append(entries, DiffEntry{Position: pos, Expected: exp[i], Status: "missing"})
		pos++
	}
	for ; j < len(act); j++ {
		entries = append(entries, DiffEntry{Position: pos, Actual: act[j], Status: "extra"})
		pos++
	}
	return entries
}

// Accuracy is the share of expected words spoken correctly. An empty
// expected text scores zero.
func Accuracy(entries []DiffEntry) float64 {
	var expected, correct int
	for _, e := range entries {
		if e.Status == "extra" {
			continue
		}
		expected++
		if e.Status == "correct" {
			correct++
		}
	}
	if expected == 0 {
		return 0
	}
	return float64(correct) / float64(expected)
}

func canonical(word string) string {
	return strings.Trim(strings.ToLower(word), ".,;:!?\"'()[]{}«»¿¡")
}
