// Package fieldpath addresses locations inside a nested form value tree.
//
// Paths accept dotted segments with optional bracket notation
// (`items[0].name`, `meta["x.y"]`). The canonical form used throughout the
// module is dotted with numeric array segments (`items.0.name`). Reads never
// fail: a missing intermediate segment simply resolves to nil.
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a raw path cannot be parsed.
var ErrInvalidPath = errors.New("fieldpath: invalid path")

// Segment is a single step in a path. Numeric segments address array
// indices, but are also valid map keys.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed field path.
type Path []Segment

// Parse splits a raw path into segments.
func Parse(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var (
		out Path
		buf strings.Builder
		i   int
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		out = append(out, segmentFor(buf.String()))
		buf.Reset()
	}

	for i < len(raw) {
		ch := raw[i]
		switch ch {
		case '.':
			if buf.Len() == 0 && (i == 0 || raw[i-1] != ']') {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, raw)
			}
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: missing ']' in %q", ErrInvalidPath, raw)
			}
			inner := strings.TrimSpace(raw[i+1 : i+end])
			if inner == "" {
				return nil, fmt.Errorf("%w: empty brackets in %q", ErrInvalidPath, raw)
			}
			if quote := inner[0]; quote == '"' || quote == '\'' {
				if len(inner) < 2 || inner[len(inner)-1] != quote {
					return nil, fmt.Errorf("%w: unterminated quoted key in %q", ErrInvalidPath, raw)
				}
				out = append(out, Segment{Key: inner[1 : len(inner)-1]})
			} else {
				out = append(out, segmentFor(inner))
			}
			i += end + 1
		default:
			buf.WriteByte(ch)
			i++
		}
	}
	if strings.HasSuffix(raw, ".") {
		return nil, fmt.Errorf("%w: trailing '.' in %q", ErrInvalidPath, raw)
	}
	flush()
	return out, nil
}

func segmentFor(raw string) Segment {
	if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
		return Segment{Key: raw, Index: idx, IsIndex: true}
	}
	return Segment{Key: raw}
}

// String renders the canonical dotted form.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.Key
	}
	return strings.Join(parts, ".")
}

// Normalize returns the canonical form of raw. Unparseable input is returned
// trimmed so callers can still use it as an opaque key.
func Normalize(raw string) string {
	p, err := Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return p.String()
}

// Join appends key to base using the canonical separator.
func Join(base, key string) string {
	base = strings.TrimSpace(base)
	key = strings.TrimSpace(key)
	switch {
	case base == "":
		return key
	case key == "":
		return base
	default:
		return base + "." + key
	}
}

// Overlaps reports whether a change at one path can affect a read at the
// other: equal paths, or one being an ancestor of the other.
func Overlaps(a, b string) bool {
	if a == b || a == "" || b == "" {
		return true
	}
	if len(a) < len(b) {
		return strings.HasPrefix(b, a) && b[len(a)] == '.'
	}
	return strings.HasPrefix(a, b) && a[len(b)] == '.'
}

// Parent returns the path without its last segment.
func Parent(path string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return path[:idx]
	}
	return ""
}

// Last returns the final segment of path.
func Last(path string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
