package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// FusedID is one id with its reciprocal rank fusion score.
type FusedID struct {
	ID    string
	Score float64
}

// Fuse merges ranked id lists with Reciprocal Rank Fusion:
//
//	score(d) = sum over lists containing d of 1 / (c + rank)
//
// with 1-indexed ranks. Output is sorted by score descending, ties broken by
// first appearance across the lists in order, and truncated to k (k <= 0
// keeps everything). Only rank position matters, so channels with
// incompatible score scales need no calibration. A list that is empty
// contributes nothing, which degrades fusion to the other list's order.
func Fuse(lists [][]string, k, c int) []FusedID {
	if c <= 0 {
		c = DefaultRRFConstant
	}
	scores := make(map[string]float64)
	first := make(map[string]int)
	for _, list := range lists {
		seen := make(map[string]bool, len(list))
		for rank, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := first[id]; !ok {
				first[id] = len(first)
			}
			scores[id] += 1.0 / float64(c+rank+1)
		}
	}

	out := make([]FusedID, 0, len(scores))
	for id, s := range scores {
		out = append(out, FusedID{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return first[out[i].ID] < first[out[j].ID]
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// FuseIDs is Fuse without scores.
func FuseIDs(lists [][]string, k, c int) []string {
	fused := Fuse(lists, k, c)
	out := make([]string, len(fused))
	for i, f := range fused {
		out[i] = f.ID
	}
	return out
}
