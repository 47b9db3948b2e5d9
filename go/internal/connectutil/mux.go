package connectutil

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ServiceMux serves the unary procedures of one connect service.
type ServiceMux struct {
	path string
	mux  *http.ServeMux
	opts []connect.HandlerOption
}

// NewServiceMux creates a mux for service, e.g. "pidr.v1.RoomService". The
// JSON codec is always installed.
func NewServiceMux(service string, opts ...connect.HandlerOption) *ServiceMux {
	return &ServiceMux{
		path: "/" + strings.Trim(service, "/") + "/",
		mux:  http.NewServeMux(),
		opts: append([]connect.HandlerOption{WithJSON()}, opts...),
	}
}

// Procedure returns the full procedure path of method.
func (m *ServiceMux) Procedure(method string) string {
	return m.path + method
}

// Handler returns the mount path and handler, in the shape of generated
// connect constructors.
func (m *ServiceMux) Handler() (string, http.Handler) {
	return m.path, m.mux
}

// Handle registers a unary method on m.
func Handle[Req, Res any](m *ServiceMux, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := m.Procedure(method)
	m.mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, m.opts...))
}
