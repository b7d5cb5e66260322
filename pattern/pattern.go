// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pattern compiles path templates with typed placeholders into
// matchers.
//
// A template is an absolute path containing zero or more placeholders of
// the form {name} or {name:type}. The built-in types are str, int, float,
// path and uuid; unknown type tags are treated as literal regular
// expression fragments so templates like {tag:[a-z]+} keep working.
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Caster converts a captured path segment into its typed value.
type Caster func(string) (any, error)

type placeholderType struct {
	expr string
	cast Caster
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)(?::([^}]+))?\}`)

func castString(s string) (any, error) { return s, nil }

func castInt(s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func castFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func builtinTypes() map[string]placeholderType {
	return map[string]placeholderType{
		"str":   {expr: `[^/]+`, cast: castString},
		"int":   {expr: `\d+`, cast: castInt},
		"float": {expr: `[0-9]*\.?[0-9]+`, cast: castFloat},
		"path":  {expr: `.*?`, cast: castString},
		"uuid": {
			expr: `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
			cast: castString,
		},
	}
}

// InvalidTemplateError occurs when a template violates the path rules
// before any regular expression work happens.
type InvalidTemplateError struct {
	Template string
	Reason   string
}

// Error implements the [builtin.error] interface.
func (e InvalidTemplateError) Error() string {
	return fmt.Sprintf("invalid path template %q: %s", e.Template, e.Reason)
}

// CompileError occurs when a template produces a malformed regular
// expression, e.g. through an unknown type tag used as a literal fragment.
type CompileError struct {
	Template string
	Cause    error
}

// Error implements the [builtin.error] interface.
func (e CompileError) Error() string {
	return fmt.Sprintf("failed to compile path template %q: %s", e.Template, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e CompileError) Unwrap() error {
	return e.Cause
}

// InvalidTypeError occurs when registering a custom placeholder type with
// an invalid name or expression.
type InvalidTypeError struct {
	Name   string
	Reason string
}

// Error implements the [builtin.error] interface.
func (e InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid placeholder type %q: %s", e.Name, e.Reason)
}

// CastError occurs when a declared caster rejects a captured value.
type CastError struct {
	Name  string
	Value string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e CastError) Error() string {
	return fmt.Sprintf("failed to cast path parameter %q from %q: %s", e.Name, e.Value, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e CastError) Unwrap() error {
	return e.Cause
}

type options struct {
	strict bool
	prefix string
}

// Option configures how a template is compiled.
type Option func(*options)

// Relaxed makes the compiled matcher additionally accept an optional
// trailing slash. The default is strict matching.
func Relaxed() Option {
	return func(o *options) {
		o.strict = false
	}
}

// Prefix prepends a literal path prefix to the template before compiling.
func Prefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// Pattern is a compiled path template. It is immutable and safe for
// concurrent use.
type Pattern struct {
	template string
	re       *regexp.Regexp
	casters  map[string]Caster
	names    []string
}

// Template returns the original template text.
func (p *Pattern) Template() string { return p.template }

// String returns the compiled regular expression text. Two registrations
// with equal String() values match exactly the same paths.
func (p *Pattern) String() string { return p.re.String() }

// Names returns the placeholder names in template order.
func (p *Pattern) Names() []string { return p.names }

// Match attempts to match path. On a structural match it returns the
// captured parameters with every typed placeholder cast to its declared
// type. A caster rejecting a captured value is reported as a [CastError];
// callers treat the route as not matching in that case.
func (p *Pattern) Match(path string) (map[string]any, bool, error) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false, nil
	}

	params := make(map[string]any, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		cast := p.casters[name]
		if cast == nil {
			params[name] = m[i]
			continue
		}
		v, err := cast(m[i])
		if err != nil {
			return nil, false, CastError{Name: name, Value: m[i], Cause: err}
		}
		params[name] = v
	}
	return params, true, nil
}

type cacheKey struct {
	template string
	strict   bool
	prefix   string
}

// Compiler compiles and caches path templates. The zero value is not
// usable; call [NewCompiler].
type Compiler struct {
	mu    sync.RWMutex
	types map[string]placeholderType
	cache map[cacheKey]*Pattern
}

// NewCompiler returns a compiler with the built-in placeholder types.
func NewCompiler() *Compiler {
	return &Compiler{
		types: builtinTypes(),
		cache: make(map[cacheKey]*Pattern),
	}
}

// RegisterType registers a custom placeholder type. The expression must
// not contain braces; the caster may be nil, in which case captured
// values stay strings.
func (c *Compiler) RegisterType(name, expr string, cast Caster) error {
	if !identRe.MatchString(name) {
		return InvalidTypeError{Name: name, Reason: "name must be an identifier"}
	}
	if strings.ContainsAny(expr, "{}") {
		return InvalidTypeError{Name: name, Reason: "expression must not contain braces"}
	}
	if _, err := regexp.Compile(expr); err != nil {
		return InvalidTypeError{Name: name, Reason: err.Error()}
	}
	if cast == nil {
		cast = castString
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = placeholderType{expr: expr, cast: cast}
	return nil
}

// Compile compiles a template into a [Pattern]. Compiled patterns are
// cached by (template, strictness, prefix) so repeated registration of the
// same template is O(1) after the first compile.
func (c *Compiler) Compile(template string, opts ...Option) (*Pattern, error) {
	o := options{strict: true}
	for _, opt := range opts {
		opt(&o)
	}

	key := cacheKey{template: template, strict: o.strict, prefix: o.prefix}

	c.mu.RLock()
	p, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := c.compile(template, o)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have compiled the same key meanwhile; keep the
	// first stored value so identical registrations share one Pattern.
	if existing, ok := c.cache[key]; ok {
		p = existing
	} else {
		c.cache[key] = p
	}
	c.mu.Unlock()
	return p, nil
}

// MustCompile is like [Compiler.Compile] but panics on error. It is meant
// for static route tables.
func (c *Compiler) MustCompile(template string, opts ...Option) *Pattern {
	p, err := c.Compile(template, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (c *Compiler) compile(template string, o options) (*Pattern, error) {
	full := o.prefix + template
	if !strings.HasPrefix(full, "/") {
		return nil, InvalidTemplateError{Template: full, Reason: "must start with '/'"}
	}
	if strings.Contains(full, "//") {
		return nil, InvalidTemplateError{Template: full, Reason: "consecutive slashes are not allowed"}
	}

	casters := make(map[string]Caster)
	var names []string
	var badPlaceholder error

	exprSrc := placeholderRe.ReplaceAllStringFunc(full, func(ph string) string {
		groups := placeholderRe.FindStringSubmatch(ph)
		name, typeTag := groups[1], groups[2]
		if _, dup := casters[name]; dup {
			badPlaceholder = InvalidTemplateError{
				Template: full,
				Reason:   fmt.Sprintf("duplicate placeholder name %q", name),
			}
			return ph
		}
		names = append(names, name)

		expr, cast := c.lookupType(typeTag)
		casters[name] = cast
		return fmt.Sprintf(`(?P<%s>%s)`, name, expr)
	})
	if badPlaceholder != nil {
		return nil, badPlaceholder
	}

	if !o.strict && !strings.HasSuffix(full, "/") {
		exprSrc += "/?"
	}

	re, err := regexp.Compile("^" + exprSrc + "$")
	if err != nil {
		return nil, CompileError{Template: full, Cause: err}
	}

	return &Pattern{
		template: full,
		re:       re,
		casters:  casters,
		names:    names,
	}, nil
}

// lookupType resolves a placeholder type tag. An empty tag means str and
// an unknown tag is used verbatim as the capture expression.
func (c *Compiler) lookupType(tag string) (string, Caster) {
	if tag == "" {
		tag = "str"
	}

	c.mu.RLock()
	t, ok := c.types[tag]
	c.mu.RUnlock()
	if ok {
		return t.expr, t.cast
	}
	return tag, castString
}
