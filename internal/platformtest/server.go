// Package platformtest provides an in-memory monitoring platform served over
// HTTP for tests. It counts calls per route and can inject failures.
package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lherron/cfgsync/internal/platform"
	"github.com/lherron/cfgsync/internal/resource"
)

// Route names used by Calls and Fail
const (
	RouteList   = "list"
	RouteGet    = "get"
	RouteCreate = "create"
	RouteUpdate = "update"
	RouteDelete = "delete"
	RouteUsers  = "users"
)

// Token is the API token the fake accepts unless overridden
const Token = "test-token"

// Fault is an injected response
type Fault struct {
	Status     int
	RetryAfter string
}

// Server is a fake platform instance
type Server struct {
	*httptest.Server

	// ConflictOnTitle makes create answer 409 when the title already exists
	ConflictOnTitle bool
	// DropOnCreate makes stored dashboards lose title and widgets, the way a
	// misbehaving platform acknowledges writes it did not persist
	DropOnCreate bool

	mu         sync.Mutex
	token      string
	order      []string
	dashboards map[string]json.RawMessage
	users      []resource.User
	calls      map[string]int
	faults     map[string][]Fault
	written    []json.RawMessage
	requests   int
	nextID     int
}

// New starts a fake platform closed at test cleanup
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		token:      Token,
		dashboards: make(map[string]json.RawMessage),
		calls:      make(map[string]int),
		faults:     make(map[string][]Fault),
	}

	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Get(platform.DashboardsPath, s.route(RouteList, s.listDashboards))
	r.Post(platform.DashboardsPath, s.route(RouteCreate, s.createDashboard))
	r.Get(platform.DashboardsPath+"/{id}", s.route(RouteGet, s.getDashboard))
	r.Put(platform.DashboardsPath+"/{id}", s.route(RouteUpdate, s.updateDashboard))
	r.Delete(platform.DashboardsPath+"/{id}", s.route(RouteDelete, s.deleteDashboard))
	r.Get(platform.UsersPath, s.route(RouteUsers, s.listUsers))

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetToken changes the accepted API token
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AddDashboard stores a dashboard payload. Missing ids are generated.
func (s *Server) AddDashboard(d *resource.Resource) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(d, "")
}

// AddUser registers a shareable user
func (s *Server) AddUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, resource.User{ID: id, Email: email})
}

// Fail queues responses returned by route before it behaves normally again
func (s *Server) Fail(route string, faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], faults...)
}

// FailStatus queues plain status failures for route
func (s *Server) FailStatus(route string, statuses ...int) {
	faults := make([]Fault, len(statuses))
	for i, st := range statuses {
		faults[i] = Fault{Status: st}
	}
	s.Fail(route, faults...)
}

// Calls returns how many requests hit route, failed ones included
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Requests returns the number of requests received, rejected ones included
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Dashboards returns the stored dashboards in insertion order
func (s *Server) Dashboards() []*resource.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*resource.Resource, 0, len(s.order))
	for _, id := range s.order {
		var d resource.Resource
		if err := json.Unmarshal(s.dashboards[id], &d); err == nil {
			out = append(out, &d)
		}
	}
	return out
}

// Written returns the raw bodies of every create and update request
func (s *Server) Written() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.written...)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		want := "apiToken " + s.token
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// route counts the call and serves a queued fault if there is one
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		var fault *Fault
		if queue := s.faults[name]; len(queue) > 0 {
			fault = &queue[0]
			s.faults[name] = queue[1:]
		}
		s.mu.Unlock()

		if fault != nil {
			if fault.RetryAfter != "" {
				w.Header().Set("Retry-After", fault.RetryAfter)
			}
			writeJSON(w, fault.Status, map[string]string{"message": http.StatusText(fault.Status)})
			return
		}
		h(w, r)
	}
}

func (s *Server) listDashboards(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]resource.Summary, 0, len(s.order))
	for _, id := range s.order {
		var d resource.Resource
		if err := json.Unmarshal(s.dashboards[id], &d); err == nil {
			out = append(out, d.Summary())
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	raw, ok := s.dashboards[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "dashboard not found"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) createDashboard(w http.ResponseWriter, r *http.Request) {
	var d resource.Resource
	raw, ok := decodeBody(w, r, &d)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, raw)
	if s.ConflictOnTitle && s.hasTitleLocked(d.Title) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "dashboard already exists"})
		return
	}
	if s.DropOnCreate {
		d.Title = ""
		d.DeleteField(resource.FieldWidgets)
	}
	id := s.storeLocked(&d, d.ID)
	writeJSON(w, http.StatusOK, json.RawMessage(s.dashboards[id]))
}

func (s *Server) updateDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var d resource.Resource
	raw, ok := decodeBody(w, r, &d)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, raw)
	if _, exists := s.dashboards[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "dashboard not found"})
		return
	}
	d.ID = id
	stored, _ := json.Marshal(d)
	s.dashboards[id] = stored
	writeJSON(w, http.StatusOK, json.RawMessage(stored))
}

func (s *Server) deleteDashboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dashboards[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "dashboard not found"})
		return
	}
	delete(s.dashboards, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]resource.User{}, s.users...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) storeLocked(d *resource.Resource, id string) string {
	if id == "" || s.dashboards[id] != nil {
		s.nextID++
		id = fmt.Sprintf("gen-%d", s.nextID)
	}
	stored := d.Clone()
	stored.ID = id
	raw, _ := json.Marshal(stored)
	if _, exists := s.dashboards[id]; !exists {
		s.order = append(s.order, id)
	}
	s.dashboards[id] = raw
	return id
}

func (s *Server) hasTitleLocked(title string) bool {
	for _, id := range s.order {
		var d resource.Resource
		if err := json.Unmarshal(s.dashboards[id], &d); err == nil && strings.TrimSpace(d.Title) == strings.TrimSpace(title) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed payload"})
		return nil, false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
