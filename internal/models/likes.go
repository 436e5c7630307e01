package models

import "slices"

// LikeSet is the set of user ids that liked a post or comment.
// Members are kept sorted so that the stored form is stable.
type LikeSet []string

// Has reports whether userID is a member.
func (s LikeSet) Has(userID string) bool {
	_, found := slices.BinarySearch(s, userID)
	return found
}

// Len returns the number of likers.
func (s LikeSet) Len() int { return len(s) }

// Toggle returns the set with userID removed if present, added otherwise,
// and whether userID is a member afterwards. The receiver is not modified.
func (s LikeSet) Toggle(userID string) (LikeSet, bool) {
	i, found := slices.BinarySearch(s, userID)
	out := make(LikeSet, 0, len(s)+1)
	if found {
		out = append(out, s[:i]...)
		return append(out, s[i+1:]...), false
	}
	out = append(out, s[:i]...)
	out = append(out, userID)
	return append(out, s[i:]...), true
}

// Normalize sorts and deduplicates members loaded from storage.
func (s LikeSet) Normalize() LikeSet {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
