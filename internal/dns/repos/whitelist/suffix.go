package whitelist

// VisitSuffixes calls visit for every non-empty suffix of name, longest first,
// until visit returns false. Whitelist matching is a plain string suffix test,
// so every byte offset is a candidate and not just label boundaries.
func VisitSuffixes(name string, visit func(suffix string) bool) {
	for i := 0; i < len(name); i++ {
		if !visit(name[i:]) {
			return
		}
	}
}
