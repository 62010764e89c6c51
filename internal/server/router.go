package server

import (
	"net/http"
	"slices"
	"strings"
	"sync"
)

// anyMethod keys handlers registered through [BasicRouter.Handler]; they do their own method dispatch.
const anyMethod = "*"

// BasicRouter routes by path through an [http.ServeMux] and by method through a per-path table,
// answering 405 with an Allow header when a path exists but the method does not.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware

	mu     sync.RWMutex
	routes map[string]map[string]http.Handler
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:    http.NewServeMux(),
		routes: map[string]map[string]http.Handler{},
	}
}

// Use appends [Middleware]. It only wraps handlers registered after the call.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method on path. GET handlers also answer HEAD.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.register(strings.ToUpper(method), path, r.Apply(handler))
}

// Handler registers h for every method on each of its [Handler.Routes].
func (r *BasicRouter) Handler(h Handler) {
	wrapped := r.Apply(h)
	for _, path := range h.Routes() {
		r.register(anyMethod, path, wrapped)
	}
}

func (r *BasicRouter) register(method, path string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	methods, ok := r.routes[path]
	if !ok {
		methods = map[string]http.Handler{}
		r.routes[path] = methods
		r.mux.Handle(path, r.dispatch(path))
	}
	methods[method] = h
}

func (r *BasicRouter) dispatch(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		methods := r.routes[path]
		h, ok := methods[req.Method]
		if !ok && req.Method == http.MethodHead {
			h, ok = methods[http.MethodGet]
		}
		if !ok {
			h, ok = methods[anyMethod]
		}
		allow := allowed(methods)
		r.mu.RUnlock()

		if !ok {
			w.Header().Set("Allow", allow)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, req)
	})
}

func allowed(methods map[string]http.Handler) string {
	list := make([]string, 0, len(methods)+1)
	for m := range methods {
		if m != anyMethod {
			list = append(list, m)
		}
	}
	if _, ok := methods[http.MethodGet]; ok {
		if _, ok := methods[http.MethodHead]; !ok {
			list = append(list, http.MethodHead)
		}
	}
	slices.Sort(list)
	return strings.Join(list, ", ")
}

// Routes lists the registered routes as "METHOD /path", sorted by path then method.
// Paths served by a [Handler] are listed with method "*".
func (r *BasicRouter) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.routes))
	for path := range r.routes {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	var out []string
	for _, path := range paths {
		methods := make([]string, 0, len(r.routes[path]))
		for m := range r.routes[path] {
			methods = append(methods, m)
		}
		slices.Sort(methods)
		for _, m := range methods {
			out = append(out, m+" "+path)
		}
	}
	return out
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler with the registered middleware; the first middleware added is outermost.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	return handler
}
