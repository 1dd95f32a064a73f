// Package metabasetest provides an in-memory Metabase API for tests.
package metabasetest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"mbmigrate/internal/mbql"
	"mbmigrate/internal/metabase"
)

// Token is the session id handed out by the fake session endpoint.
const Token = "test-session"

// FirstCreatedID is the id given to the first document created by POST.
const FirstCreatedID = 1000

// Server serves canned JSON documents keyed by request path and records
// every PUT and POST body. A POST to a collection path such as /api/metric
// stores the document under a new id starting at FirstCreatedID.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     map[string]string
	status   map[string]int
	puts     map[string][]string
	posts    map[string][]string
	nextID   int64
	requests map[string]int
	username string
	password string
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		docs:     make(map[string]string),
		status:   make(map[string]int),
		puts:     make(map[string][]string),
		posts:    make(map[string][]string),
		nextID:   FirstCreatedID,
		requests: make(map[string]int),
		username: "admin",
		password: "secret",
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Set serves body for GET path.
func (s *Server) Set(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = body
}

// Fail makes every request to path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// Puts returns the bodies written to path, oldest first.
func (s *Server) Puts(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts[path]...)
}

// Posts returns the bodies posted to path, oldest first.
func (s *Server) Posts(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.posts[path]...)
}

// Requests returns how many GET requests hit path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// Session logs in against the server.
func (s *Server) Session(t testing.TB) *metabase.Session {
	t.Helper()
	c := metabase.NewClient(s.URL)
	sess, err := c.Login(t.Context(), s.username, s.password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return sess
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.status[r.URL.Path]; ok {
		http.Error(w, http.StatusText(code), code)
		return
	}

	if r.URL.Path == "/api/session" && r.Method == http.MethodPost {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil ||
			creds.Username != s.username || creds.Password != s.password {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"errors":{"password":"did not match stored password"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"`+Token+`"}`)
		return
	}

	if r.Header.Get(metabase.SessionHeader) != Token {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.requests[r.URL.Path]++
		body, ok := s.docs[r.URL.Path]
		if !ok {
			http.Error(w, "Not found.", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	case http.MethodPut:
		raw, _ := io.ReadAll(r.Body)
		s.puts[r.URL.Path] = append(s.puts[r.URL.Path], string(raw))
		s.docs[r.URL.Path] = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	case http.MethodPost:
		raw, _ := io.ReadAll(r.Body)
		s.posts[r.URL.Path] = append(s.posts[r.URL.Path], string(raw))
		created, err := s.create(r.URL.Path, raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// create assigns the next id to the posted object and serves it for GET.
func (s *Server) create(path string, raw []byte) ([]byte, error) {
	doc, err := mbql.DecodeMapping(raw)
	if err != nil {
		return nil, err
	}
	id := s.nextID
	s.nextID++
	doc.Set("id", mbql.Int(id))
	out, err := mbql.Marshal(doc)
	if err != nil {
		return nil, err
	}
	s.docs[fmt.Sprintf("%s/%d", path, id)] = string(out)
	return out, nil
}

// Compact strips insignificant whitespace so fixtures can be written indented.
func Compact(t testing.TB, s string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		t.Fatalf("compact: %v", err)
	}
	return buf.String()
}
