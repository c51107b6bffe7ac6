package rbac

import "strings"

// Build serializes a (resource, action) pair into its canonical
// permission string: "<resource>.<action>". It performs no catalog
// validation; the codec stays catalog-agnostic so catalog and
// enforcement can evolve independently. It is the only legitimate
// constructor of permission strings.
func Build(resource string, action Action) string {
	return resource + "." + string(action)
}

// BuildAll maps Build over the given actions, preserving input order.
func BuildAll(resource string, actions []Action) []string {
	out := make([]string, len(actions))

	for i, a := range actions {
		out[i] = Build(resource, a)
	}

	return out
}

// Parse splits a permission string back into its (resource, action)
// pair. Resources are dot-namespaced, so the split happens on the last
// dot followed by a canonical action keyword, never the first. Returns
// false when the string carries no canonical action suffix.
func Parse(permission string) (resource string, action Action, ok bool) {
	idx := strings.LastIndexByte(permission, '.')
	if idx <= 0 || idx == len(permission)-1 {
		return "", "", false
	}

	suffix := Action(permission[idx+1:])

	for _, a := range CanonicalActions {
		if suffix == a {
			return permission[:idx], a, true
		}
	}

	return "", "", false
}

// Label renders a human-readable label for a resource: the module
// segment is dropped, the remaining underscore-separated words are
// title-cased, and a trailing "_all" renders as "<Base> (All)" to flag
// scope permissions in UI contexts.
func Label(resource string) string {
	rest := resource

	if idx := strings.IndexByte(resource, '.'); idx >= 0 {
		rest = resource[idx+1:]
	}

	all := strings.HasSuffix(rest, "_all")
	if all {
		rest = strings.TrimSuffix(rest, "_all")
	}

	words := strings.Split(rest, "_")
	for i, w := range words {
		if w == "" {
			continue
		}

		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	label := strings.Join(words, " ")
	if all {
		label += " (All)"
	}

	return label
}
