package fieldpath

import (
	"fmt"
	"reflect"
)

// Get resolves path inside root. The boolean reports whether every segment
// existed; the value is nil whenever it did not.
func Get(root any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}
	p, err := Parse(path)
	if err != nil {
		return nil, false
	}
	return p.Get(root)
}

// Get resolves the parsed path inside root.
func (p Path) Get(root any) (any, bool) {
	current := root
	for _, seg := range p {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg.Key]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[seg.Key]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			if !seg.IsIndex || seg.Index >= len(node) {
				return nil, false
			}
			current = node[seg.Index]
		case []map[string]any:
			if !seg.IsIndex || seg.Index >= len(node) {
				return nil, false
			}
			current = node[seg.Index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Lookup is Get without the presence flag.
func Lookup(root any, path string) any {
	value, _ := Get(root, path)
	return value
}

// MaxIndexGap is how far past the end of a slice Set may write. The gap is
// filled with nil.
const MaxIndexGap = 1024

// Set writes value at path, creating intermediate maps and slices as needed.
// Numeric segments create slices when the container does not exist yet.
func Set(root map[string]any, path string, value any) error {
	if root == nil {
		return fmt.Errorf("fieldpath: root map is nil")
	}
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	_, err = setIn(root, p, value, path)
	return err
}

func setIn(node any, p Path, value any, full string) (any, error) {
	seg := p[0]
	last := len(p) == 1

	switch typed := node.(type) {
	case map[string]any:
		if last {
			typed[seg.Key] = value
			return typed, nil
		}
		child, err := setIn(containerFor(typed[seg.Key], p[1]), p[1:], value, full)
		if err != nil {
			return nil, err
		}
		typed[seg.Key] = child
		return typed, nil
	case []any:
		if !seg.IsIndex {
			return nil, fmt.Errorf("fieldpath: expected numeric segment, got %q in %q", seg.Key, full)
		}
		if seg.Index-len(typed) > MaxIndexGap {
			return nil, fmt.Errorf("%w: index %d is more than %d past the end of %q", ErrInvalidPath, seg.Index, MaxIndexGap, full)
		}
		if len(typed) <= seg.Index {
			typed = append(typed, make([]any, seg.Index+1-len(typed))...)
		}
		if last {
			typed[seg.Index] = value
			return typed, nil
		}
		child, err := setIn(containerFor(typed[seg.Index], p[1]), p[1:], value, full)
		if err != nil {
			return nil, err
		}
		typed[seg.Index] = child
		return typed, nil
	default:
		return nil, fmt.Errorf("fieldpath: unexpected container for segment %q in %q", seg.Key, full)
	}
}

// containerFor returns existing when it can hold next, otherwise a fresh
// container of the right kind.
func containerFor(existing any, next Segment) any {
	switch existing.(type) {
	case map[string]any:
		return existing
	case []any:
		if next.IsIndex {
			return existing
		}
	}
	if next.IsIndex {
		return []any{}
	}
	return map[string]any{}
}

// Delete removes the value at path. Deleting an array index removes the
// element and shifts the rest. Missing paths are not an error.
func Delete(root map[string]any, path string) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	parentPath, leaf := p[:len(p)-1], p[len(p)-1]
	parent, ok := parentPath.Get(root)
	if !ok {
		return nil
	}
	switch typed := parent.(type) {
	case map[string]any:
		delete(typed, leaf.Key)
	case []any:
		if !leaf.IsIndex || leaf.Index >= len(typed) {
			return nil
		}
		shrunk := append(append([]any(nil), typed[:leaf.Index]...), typed[leaf.Index+1:]...)
		if len(parentPath) == 0 {
			return nil
		}
		_, err = setIn(root, parentPath, shrunk, path)
		return err
	}
	return nil
}

// Clone deep-copies maps and slices inside value.
func Clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = Clone(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = Clone(v)
		}
		return out
	default:
		return typed
	}
}

// CloneMap deep-copies a value tree root. A nil input yields an empty map.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return make(map[string]any)
	}
	return Clone(src).(map[string]any)
}

// Equal compares two values structurally.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Flatten lists the canonical paths of every leaf in root. Empty containers
// count as leaves.
func Flatten(root map[string]any) []string {
	var out []string
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		switch typed := node.(type) {
		case map[string]any:
			if len(typed) == 0 && prefix != "" {
				out = append(out, prefix)
				return
			}
			for k, v := range typed {
				walk(Join(prefix, k), v)
			}
		case []any:
			if len(typed) == 0 {
				out = append(out, prefix)
				return
			}
			for i, v := range typed {
				walk(Join(prefix, fmt.Sprint(i)), v)
			}
		default:
			out = append(out, prefix)
		}
	}
	walk("", root)
	return out
}
