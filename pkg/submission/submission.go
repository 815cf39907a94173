package submission

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
)

// Field is the submission view of one field instance.
type Field struct {
	Path      string
	State     logic.State
	Exclusion Exclusion
}

// Options carries the form and global exclusion tiers.
type Options struct {
	Form   Exclusion
	Global Exclusion
	// Sanitize strips markup from every string leaf.
	Sanitize bool
}

// Excluded reports whether f's value is stripped under opts.
func Excluded(f Field, opts Options) bool {
	r := Resolve(f.Exclusion, opts.Form, opts.Global)
	return (f.State.Hidden && r.Hidden) ||
		(f.State.Disabled && r.Disabled) ||
		(f.State.Readonly && r.Readonly)
}

// Build deep-copies values and removes excluded field paths. Array item
// removals run from the highest index down so earlier indices stay valid.
func Build(values map[string]any, fields []Field, opts Options) map[string]any {
	out := fieldpath.CloneMap(values)

	var drop []string
	for _, f := range fields {
		if f.Path != "" && Excluded(f, opts) {
			drop = append(drop, f.Path)
		}
	}
	sort.Slice(drop, func(i, j int) bool { return pathAfter(drop[i], drop[j]) })
	for _, path := range drop {
		_ = fieldpath.Delete(out, path)
	}

	if opts.Sanitize {
		sanitizeTree(out)
	}
	return out
}

// pathAfter orders paths descending, comparing numeric segments as numbers.
func pathAfter(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return an > bn
		}
		return as[i] > bs[i]
	}
	return len(as) > len(bs)
}

var (
	stringPolicyOnce sync.Once
	stringPolicy     *bluemonday.Policy
)

func sanitizer() *bluemonday.Policy {
	stringPolicyOnce.Do(func() {
		stringPolicy = bluemonday.StrictPolicy()
	})
	return stringPolicy
}

// unescapeText reverts the entity escaping the policy applies to plain text.
// Angle brackets stay escaped so no markup comes back.
var unescapeText = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", `"`)

// SanitizeString removes all markup from s. Strings without a '<' carry no
// markup and are returned unchanged.
func SanitizeString(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return unescapeText.Replace(sanitizer().Sanitize(s))
}

func sanitizeTree(node any) any {
	switch typed := node.(type) {
	case map[string]any:
		for k, v := range typed {
			typed[k] = sanitizeTree(v)
		}
		return typed
	case []any:
		for i, v := range typed {
			typed[i] = sanitizeTree(v)
		}
		return typed
	case string:
		return SanitizeString(typed)
	default:
		return typed
	}
}
