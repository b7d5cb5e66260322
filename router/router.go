// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package router matches incoming connections to registered routes in
// registration order.
package router

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/inject"
	"github.com/bermoid/bermoid/pattern"
	"github.com/bermoid/bermoid/response"
)

var validMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// InvalidMethodError is returned when a route is registered with an
// unrecognized HTTP method.
type InvalidMethodError struct {
	Method string
}

// Error implements the [builtin.error] interface.
func (e InvalidMethodError) Error() string {
	return fmt.Sprintf("router: invalid http method %q", e.Method)
}

// DuplicateRouteError is returned when a route compiles to the same
// matcher as one already registered with the same handler.
type DuplicateRouteError struct {
	Method   string
	Template string
	Existing string
}

// Error implements the [builtin.error] interface.
func (e DuplicateRouteError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("router: %q already registered as %q", e.Template, e.Existing)
	}
	return fmt.Sprintf("router: %s %q already registered as %q", e.Method, e.Template, e.Existing)
}

// ResponseCheck validates a route's normalized response before it is
// written. Dispatchers treat a non-nil error as an internal failure.
type ResponseCheck func(*response.Response) error

// Spec declares an HTTP route.
type Spec struct {
	// Name identifies the route in middleware exclusions and logs.
	// Defaults to the methods joined with the template.
	Name string

	// Method and Methods together form the route's method set,
	// uppercased and deduplicated. An empty set defaults to GET.
	Method  string
	Methods []string

	Template string

	// Relaxed tolerates a single trailing slash on the request path.
	Relaxed bool

	Plan    *inject.Plan
	Handler inject.HandlerFunc

	// Response, when set, validates every normalized response the
	// handler produces.
	Response ResponseCheck
}

// Route is a registered HTTP route.
type Route struct {
	name     string
	methods  []string
	pattern  *pattern.Pattern
	plan     *inject.Plan
	handler  inject.HandlerFunc
	response ResponseCheck
}

// Name returns the route name.
func (r *Route) Name() string { return r.name }

// Methods returns the normalized method set in declaration order.
func (r *Route) Methods() []string { return r.methods }

// Template returns the source route template.
func (r *Route) Template() string { return r.pattern.Template() }

// Plan returns the route's parameter plan, which may be nil.
func (r *Route) Plan() *inject.Plan { return r.plan }

// Handler returns the route handler.
func (r *Route) Handler() inject.HandlerFunc { return r.handler }

// Response returns the route's response check, which may be nil.
func (r *Route) Response() ResponseCheck { return r.response }

// Match is a successful route lookup.
type Match struct {
	Route  *Route
	Params map[string]any
}

// SocketSpec declares a websocket route.
type SocketSpec struct {
	Name     string
	Template string
	Relaxed  bool
	Handler  bermoid.SocketHandler
}

// SocketRoute is a registered websocket route.
type SocketRoute struct {
	name    string
	pattern *pattern.Pattern
	handler bermoid.SocketHandler
}

// Name returns the route name.
func (r *SocketRoute) Name() string { return r.name }

// Template returns the source route template.
func (r *SocketRoute) Template() string { return r.pattern.Template() }

// Handler returns the socket handler.
func (r *SocketRoute) Handler() bermoid.SocketHandler { return r.handler }

// SocketMatch is a successful websocket route lookup.
type SocketMatch struct {
	Route  *SocketRoute
	Params map[string]any
}

// routeKey identifies a registration by its compiled matcher text and
// the handler it dispatches to.
type routeKey struct {
	pattern string
	handler uintptr
}

// Registry holds routes and resolves them in registration order.
// Registration and matching are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	compiler *pattern.Compiler
	routes   []*Route
	sockets  []*SocketRoute
	keys     map[routeKey]*Route
	sockKeys map[string]*SocketRoute
}

// New initializes a [Registry]. A nil compiler gets a default one.
func New(compiler *pattern.Compiler) *Registry {
	if compiler == nil {
		compiler = pattern.NewCompiler()
	}
	return &Registry{
		compiler: compiler,
		keys:     make(map[routeKey]*Route),
		sockKeys: make(map[string]*SocketRoute),
	}
}

// normalizeMethods merges the spec's single method and method list into
// one uppercased, deduplicated set, defaulting to GET.
func normalizeMethods(spec Spec) ([]string, error) {
	raw := make([]string, 0, len(spec.Methods)+1)
	if spec.Method != "" {
		raw = append(raw, spec.Method)
	}
	raw = append(raw, spec.Methods...)
	if len(raw) == 0 {
		raw = append(raw, http.MethodGet)
	}

	seen := make(map[string]struct{}, len(raw))
	methods := make([]string, 0, len(raw))
	for _, m := range raw {
		upper := strings.ToUpper(m)
		if _, ok := validMethods[upper]; !ok {
			return nil, InvalidMethodError{Method: m}
		}
		if _, dup := seen[upper]; dup {
			continue
		}
		seen[upper] = struct{}{}
		methods = append(methods, upper)
	}
	return methods, nil
}

// Add registers an HTTP route. Two templates that compile to the same
// matcher for the same handler are rejected, even when spelled
// differently.
func (reg *Registry) Add(spec Spec) (*Route, error) {
	methods, err := normalizeMethods(spec)
	if err != nil {
		return nil, err
	}

	p, err := reg.compile(spec.Template, spec.Relaxed)
	if err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = strings.Join(methods, ",") + " " + spec.Template
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := routeKey{
		pattern: p.String(),
		handler: reflect.ValueOf(spec.Handler).Pointer(),
	}
	if existing, ok := reg.keys[key]; ok {
		return nil, DuplicateRouteError{
			Template: spec.Template,
			Existing: existing.Template(),
		}
	}

	route := &Route{
		name:     name,
		methods:  methods,
		pattern:  p,
		plan:     spec.Plan,
		handler:  spec.Handler,
		response: spec.Response,
	}
	reg.routes = append(reg.routes, route)
	reg.keys[key] = route
	return route, nil
}

// AddSocket registers a websocket route.
func (reg *Registry) AddSocket(spec SocketSpec) (*SocketRoute, error) {
	p, err := reg.compile(spec.Template, spec.Relaxed)
	if err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = "WS " + spec.Template
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.sockKeys[p.String()]; ok {
		return nil, DuplicateRouteError{
			Method:   "WS",
			Template: spec.Template,
			Existing: existing.Template(),
		}
	}

	route := &SocketRoute{
		name:    name,
		pattern: p,
		handler: spec.Handler,
	}
	reg.sockets = append(reg.sockets, route)
	reg.sockKeys[p.String()] = route
	return route, nil
}

func (reg *Registry) compile(template string, relaxed bool) (*pattern.Pattern, error) {
	var opts []pattern.Option
	if relaxed {
		opts = append(opts, pattern.Relaxed())
	}
	return reg.compiler.Compile(template, opts...)
}

// Match resolves the first registered route whose pattern matches the
// path and whose method set contains the method. When only the method
// differs, the returned slice carries the union of every path-matching
// route's methods, in registration order, so callers can distinguish a
// 405 from a 404.
func (reg *Registry) Match(method, path string) (*Match, []string) {
	method = strings.ToUpper(method)

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var allowed []string
	seen := make(map[string]struct{})
	for _, route := range reg.routes {
		params, ok, err := route.pattern.Match(path)
		if err != nil || !ok {
			continue
		}
		matched := false
		for _, m := range route.methods {
			if m == method {
				matched = true
				break
			}
		}
		if matched {
			return &Match{Route: route, Params: params}, nil
		}
		for _, m := range route.methods {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			allowed = append(allowed, m)
		}
	}
	return nil, allowed
}

// MatchSocket resolves the first registered websocket route matching the
// path.
func (reg *Registry) MatchSocket(path string) (*SocketMatch, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for _, route := range reg.sockets {
		params, ok, err := route.pattern.Match(path)
		if err != nil || !ok {
			continue
		}
		return &SocketMatch{Route: route, Params: params}, true
	}
	return nil, false
}

// Routes returns the registered HTTP routes in registration order.
func (reg *Registry) Routes() []*Route {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Route, len(reg.routes))
	copy(out, reg.routes)
	return out
}
