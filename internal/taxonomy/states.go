package taxonomy

import "strings"

// incompleteMarkers identify product-state tags that describe missing work.
var incompleteMarkers = []string{"to-be-completed", "to-be-checked", "to-be-validated", "to-be-uploaded"}

// IsIncompleteState reports whether a product-state tag describes missing data.
func IsIncompleteState(tag string) bool {
	for _, m := range incompleteMarkers {
		if strings.Contains(tag, m) {
			return true
		}
	}
	return false
}

// SplitStates partitions product-state tags, keeping input order in each half.
func SplitStates(tags []string) (complete, incomplete []string) {
	for _, tag := range tags {
		if IsIncompleteState(tag) {
			incomplete = append(incomplete, tag)
		} else {
			complete = append(complete, tag)
		}
	}
	return complete, incomplete
}

// StateValue strips the language prefix: "en:photos-uploaded" -> "photos-uploaded".
func StateValue(tag string) string {
	if _, v, ok := strings.Cut(tag, ":"); ok {
		return v
	}
	return tag
}
