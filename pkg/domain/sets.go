package domain

// Ordered string-set helpers. Inputs are never mutated.

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func addToSet(set []string, values []string) []string {
	out := append([]string{}, set...)
	for _, v := range values {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func without(set []string, values []string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if !contains(values, v) {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string { return addToSet(dedupe(a), b) }

func intersect(a, b []string) []string {
	var out []string
	for _, v := range a {
		if contains(b, v) && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// SameSet reports whether a and b hold the same elements, ignoring order and duplicates.
func SameSet(a, b []string) bool {
	a, b = dedupe(a), dedupe(b)
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !contains(b, v) {
			return false
		}
	}
	return true
}

// Diff returns the elements of want missing from have, and the elements of have not in want.
func Diff(want, have []string) (missing, extra []string) {
	for _, v := range dedupe(want) {
		if !contains(have, v) {
			missing = append(missing, v)
		}
	}
	for _, v := range dedupe(have) {
		if !contains(want, v) {
			extra = append(extra, v)
		}
	}
	return missing, extra
}

// Contains reports whether set holds v.
func Contains(set []string, v string) bool { return contains(set, v) }
