// Package fakeserver is an in-process stand-in for the recognition service,
// used by tests and by the fake-server command for local demos.
package fakeserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vietddude/faceguard/internal/core/domain"
)

// RecognizeFunc decides the answer to an uploaded image.
type RecognizeFunc func(image []byte) domain.Recognition

// Server holds the fake service state.
type Server struct {
	mu           sync.Mutex
	students     []domain.Student
	recognize    RecognizeFunc
	failures     map[string][]int
	seen         map[string][]byte
	acks         []string
	requests     map[string]int
	directLookup bool
	token        string
}

// New creates a fake service holding students.
func New(students []domain.Student) *Server {
	return &Server{
		students:     students,
		failures:     make(map[string][]int),
		seen:         make(map[string][]byte),
		requests:     make(map[string]int),
		directLookup: true,
		recognize: func(image []byte) domain.Recognition {
			return domain.Recognition{Success: false, Message: "No matching student"}
		},
	}
}

// Seed creates n students named "Student NNN".
func Seed(n int) []domain.Student {
	out := make([]domain.Student, n)
	for i := range out {
		out[i] = domain.Student{
			ID:     fmt.Sprintf("S%03d", i+1),
			Name:   fmt.Sprintf("Student %03d", i+1),
			Class:  fmt.Sprintf("10A%d", i%3+1),
			Status: "active",
		}
	}
	return out
}

// SetRecognizer replaces the recognition outcome.
func (s *Server) SetRecognizer(fn RecognizeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recognize = fn
}

// SetDirectLookup toggles GET /students/{id}. When disabled it answers 404 and
// clients must scan the listing.
func (s *Server) SetDirectLookup(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directLookup = enabled
}

// RequireToken makes every request carry "Bearer <token>".
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext makes the next requests for route fail with the given statuses in
// order. route is a pattern such as "POST /recognize".
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// Acks returns the acknowledged alert ids in arrival order.
func (s *Server) Acks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acks...)
}

// Requests returns how many requests reached route, failed or not.
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Handler returns the HTTP handler of the fake service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.auth)

	r.Get("/health", s.health)
	r.With(s.inject("GET /students")).Get("/students", s.listStudents)
	r.With(s.inject("GET /students/{id}")).Get("/students/{id}", s.getStudent)
	r.With(s.inject("POST /recognize")).Post("/recognize", s.recognizeImage)
	r.With(s.inject("POST /alerts/{id}/ack")).Post("/alerts/{id}/ack", s.ackAlert)

	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" && r.URL.Path != "/health" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// inject counts requests for route and serves scheduled failures.
func (s *Server) inject(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.requests[route]++
			var status int
			if queued := s.failures[route]; len(queued) > 0 {
				status = queued[0]
				s.failures[route] = queued[1:]
			}
			s.mu.Unlock()

			if status != 0 {
				writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) listStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if q.Get("page") == "" {
		page, err = 1, nil
	}
	if err != nil || page < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{{"loc": []string{"query", "page"}, "msg": "invalid page"}}})
		return
	}
	size, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || size < 1 {
		size = 20
	}
	search := strings.ToLower(q.Get("search"))
	class := q.Get("class")

	s.mu.Lock()
	matched := make([]domain.Student, 0)
	for _, st := range s.students {
		if search != "" && !strings.Contains(strings.ToLower(st.Name), search) && !strings.Contains(strings.ToLower(st.ID), search) {
			continue
		}
		if class != "" && st.Class != class {
			continue
		}
		matched = append(matched, st)
	}
	s.mu.Unlock()

	totalPages := (len(matched) + size - 1) / size
	start := min((page-1)*size, len(matched))
	end := min(start+size, len(matched))

	writeJSON(w, http.StatusOK, map[string]any{
		"items":       matched[start:end:end],
		"page":        page,
		"total_pages": totalPages,
	})
}

func (s *Server) getStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.directLookup {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		return
	}
	for _, st := range s.students {
		if st.ID == id {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Student not found"})
}

func (s *Server) recognizeImage(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	if cached, ok := s.seen[key]; ok && key != "" {
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		_, _ = w.Write(cached)
		return
	}
	recognize := s.recognize
	s.mu.Unlock()

	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "image file is required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil || len(image) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "image file is empty"})
		return
	}

	body, err := json.Marshal(recognize(image))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	if key != "" {
		s.mu.Lock()
		s.seen[key] = body
		s.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) ackAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; !ok || key == "" {
		s.acks = append(s.acks, id)
		if key != "" {
			s.seen[key] = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
