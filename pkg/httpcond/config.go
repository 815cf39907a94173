// Package httpcond resolves conditions and derivations backed by HTTP calls.
//
// A Template is compiled once from a Config. For every evaluation it builds
// a Request from the current form values; the Request key identifies the
// call for caching, debouncing and staleness checks. A Resolver, owned by a
// single form instance, turns keys into values.
package httpcond

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/goliatone/go-formlogic/pkg/expr"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
)

var ErrInvalidConfig = errors.New("httpcond: invalid config")

// CacheScope controls how resolved values are shared.
type CacheScope string

const (
	// CacheForm shares results between all fields of one form instance.
	CacheForm CacheScope = "form"
	// CacheField keeps results per field instance.
	CacheField CacheScope = "field"
	// CacheNone never caches.
	CacheNone CacheScope = "none"
)

// Config is the declarative description of a call.
//
// Params and Body map names to expressions evaluated against the form
// (`role`, `formValue.user.id`, `'literal'`). Params named in the URL as
// `{name}` are interpolated into the path; the rest become the query string.
// For POST, PUT and PATCH without an explicit Body, the remaining params are
// sent as the JSON body instead.
type Config struct {
	URL           string            `json:"url" yaml:"url"`
	Method        string            `json:"method,omitempty" yaml:"method,omitempty"`
	Params        map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Body          map[string]string `json:"body,omitempty" yaml:"body,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ResponsePath  string            `json:"responsePath,omitempty" yaml:"responsePath,omitempty"`
	CoerceBoolean bool              `json:"coerceBoolean,omitempty" yaml:"coerceBoolean,omitempty"`
	DebounceMs    int               `json:"debounceMs,omitempty" yaml:"debounceMs,omitempty"`
	PendingValue  any               `json:"pendingValue,omitempty" yaml:"pendingValue,omitempty"`
	CacheScope    CacheScope        `json:"cacheScope,omitempty" yaml:"cacheScope,omitempty"`
	TimeoutMs     int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

type param struct {
	name    string
	program *expr.Program
}

// Template is a compiled Config.
type Template struct {
	cfg          Config
	params       []param
	body         []param
	placeholders map[string]struct{}
	responsePath string
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// Compile validates cfg and compiles its expressions.
func Compile(cfg Config) (*Template, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	switch cfg.Method {
	case "":
		cfg.Method = "GET"
	case "GET", "POST", "PUT", "PATCH":
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidConfig, cfg.Method)
	}
	switch cfg.CacheScope {
	case "":
		cfg.CacheScope = CacheForm
	case CacheForm, CacheField, CacheNone:
	default:
		return nil, fmt.Errorf("%w: unknown cache scope %q", ErrInvalidConfig, cfg.CacheScope)
	}
	if cfg.DebounceMs < 0 || cfg.TimeoutMs < 0 {
		return nil, fmt.Errorf("%w: negative debounce or timeout", ErrInvalidConfig)
	}

	t := &Template{cfg: cfg, placeholders: make(map[string]struct{})}
	for _, m := range placeholderPattern.FindAllStringSubmatch(cfg.URL, -1) {
		t.placeholders[m[1]] = struct{}{}
	}

	var err error
	if t.params, err = compileParams(cfg.Params); err != nil {
		return nil, err
	}
	if t.body, err = compileParams(cfg.Body); err != nil {
		return nil, err
	}
	for name := range t.placeholders {
		if _, ok := cfg.Params[name]; !ok {
			return nil, fmt.Errorf("%w: url placeholder {%s} has no param", ErrInvalidConfig, name)
		}
	}

	rp := strings.TrimSpace(cfg.ResponsePath)
	if rp == "response" {
		rp = ""
	}
	rp = strings.TrimPrefix(rp, "response.")
	p, err := fieldpath.Parse(rp)
	if err != nil {
		return nil, fmt.Errorf("%w: response path: %v", ErrInvalidConfig, err)
	}
	t.responsePath = p.String()
	return t, nil
}

func compileParams(src map[string]string) ([]param, error) {
	if len(src) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]param, 0, len(names))
	for _, name := range names {
		program, err := expr.Compile(src[name])
		if err != nil {
			return nil, fmt.Errorf("%w: param %q: %v", ErrInvalidConfig, name, err)
		}
		out = append(out, param{name: name, program: program})
	}
	return out, nil
}

// Config returns the normalized configuration.
func (t *Template) Config() Config { return t.cfg }

// Programs lists the compiled param and body expressions; their references
// are the values the call depends on.
func (t *Template) Programs() []*expr.Program {
	out := make([]*expr.Program, 0, len(t.params)+len(t.body))
	for _, p := range t.params {
		out = append(out, p.program)
	}
	for _, p := range t.body {
		out = append(out, p.program)
	}
	return out
}

// Extract reads the configured response path from a decoded body.
func (t *Template) Extract(body any) any {
	v := fieldpath.Lookup(body, t.responsePath)
	if t.cfg.CoerceBoolean {
		return expr.Truthy(v)
	}
	return v
}

// Request is a fully interpolated call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Body    map[string]any
	Headers map[string]string
}

// Build evaluates params against vars.
func (t *Template) Build(vars expr.Vars) (Request, error) {
	req := Request{Method: t.cfg.Method, Headers: t.cfg.Headers}

	values := make(map[string]any, len(t.params))
	for _, p := range t.params {
		v, err := p.program.Eval(vars)
		if err != nil {
			return Request{}, fmt.Errorf("httpcond: param %q: %w", p.name, err)
		}
		values[p.name] = v
	}

	req.URL = placeholderPattern.ReplaceAllStringFunc(t.cfg.URL, func(m string) string {
		name := m[1 : len(m)-1]
		return url.PathEscape(expr.ToString(values[name]))
	})

	rest := make(map[string]any)
	for _, p := range t.params {
		if _, ok := t.placeholders[p.name]; ok {
			continue
		}
		rest[p.name] = values[p.name]
	}

	if req.Method != "GET" {
		if len(t.body) > 0 {
			req.Body = make(map[string]any, len(t.body))
			for _, p := range t.body {
				v, err := p.program.Eval(vars)
				if err != nil {
					return Request{}, fmt.Errorf("httpcond: body %q: %w", p.name, err)
				}
				req.Body[p.name] = v
			}
		} else if len(rest) > 0 {
			req.Body = rest
			rest = nil
		}
	}

	if len(rest) > 0 {
		req.Query = url.Values{}
		for name, v := range rest {
			req.Query.Set(name, expr.ToString(v))
		}
	}
	return req, nil
}

// Key is the stable signature of the request:
// METHOD URL?sorted-query#canonical-json-body.
func (r Request) Key() string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(r.URL)
	if len(r.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(r.Query.Encode())
	}
	if r.Body != nil {
		// map keys are emitted sorted
		data, err := json.Marshal(r.Body)
		if err != nil {
			data = []byte(fmt.Sprint(r.Body))
		}
		b.WriteByte('#')
		b.Write(data)
	}
	return b.String()
}

// FullURL joins the URL and query string.
func (r Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Query.Encode()
}
