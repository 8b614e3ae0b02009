// Package dotpath walks nested map[string]any structures by dot-separated
// paths ("user.profile.age"). All functions are pure over their inputs except
// Set and Delete, which mutate the root map in place.
package dotpath

import "strings"

// Missing is the absence sentinel returned by Get when any segment of the
// path does not resolve. It is distinct from a stored nil value.
type missing struct{}

// Missing reports whether v is the absence sentinel.
func Missing(v any) bool {
	_, ok := v.(missing)
	return ok
}

// Split turns a dot-path into its segments. An empty path yields nil.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get resolves segs inside root. The moment any intermediate value is
// absent, nil, or not a map, the absence sentinel is returned; Get never
// panics and never errors.
func Get(root map[string]any, segs []string) any {
	if len(segs) == 0 || root == nil {
		return missing{}
	}
	cur := root
	for i, s := range segs {
		v, ok := cur[s]
		if !ok {
			return missing{}
		}
		if i == len(segs)-1 {
			return v
		}
		next, ok := v.(map[string]any)
		if !ok || next == nil {
			return missing{}
		}
		cur = next
	}
	return missing{} // unreachable
}

// Set writes value at segs inside root, creating intermediate maps as
// needed. An existing non-map value occupying a path prefix is overwritten
// with a fresh map (last write wins). An empty segs is a no-op.
func Set(root map[string]any, segs []string, value any) {
	if len(segs) == 0 || root == nil {
		return
	}
	cur := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok || next == nil {
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// Delete removes the leaf at segs. If any segment is absent or a prefix
// resolves to a non-map, Delete does nothing and reports false; it reports
// true only when a present leaf was actually removed.
func Delete(root map[string]any, segs []string) bool {
	if len(segs) == 0 || root == nil {
		return false
	}
	cur := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok || next == nil {
			return false
		}
		cur = next
	}
	leaf := segs[len(segs)-1]
	if _, ok := cur[leaf]; !ok {
		return false
	}
	delete(cur, leaf)
	return true
}
