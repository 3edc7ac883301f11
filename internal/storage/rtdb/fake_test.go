package rtdb

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeDB is a minimal in-memory Realtime Database REST endpoint.
type fakeDB struct {
	mu       sync.Mutex
	root     map[string]any
	token    string
	requests []string
	fail     map[string]int
}

func newFakeDB(t *testing.T, token string) (*fakeDB, *httptest.Server) {
	t.Helper()
	db := &fakeDB{root: map[string]any{}, token: token, fail: map[string]int{}}
	srv := httptest.NewServer(db)
	t.Cleanup(srv.Close)
	return db, srv
}

func splitPath(p string) []string {
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".json")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (db *fakeDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	db.mu.Lock()
	defer db.mu.Unlock()

	path := strings.TrimSuffix(strings.Trim(r.URL.Path, "/"), ".json")
	db.requests = append(db.requests, r.Method+" "+path)

	if db.token != "" && r.URL.Query().Get("auth") != db.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Permission denied"}`)
		return
	}
	if code, ok := db.fail[r.Method+" "+path]; ok {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"error":"injected failure"}`)
		return
	}

	segs := splitPath(r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		node := db.get(segs)
		if r.URL.Query().Get("shallow") == "true" {
			if m, ok := node.(map[string]any); ok {
				shallow := map[string]any{}
				for k := range m {
					shallow[k] = true
				}
				node = shallow
			}
		}
		_ = json.NewEncoder(w).Encode(node)
	case http.MethodPut, http.MethodPatch:
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Invalid data; couldn't parse JSON object."}`)
			return
		}
		if r.Method == http.MethodPut {
			db.set(segs, body)
		} else {
			obj, ok := body.(map[string]any)
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"Invalid data; couldn't parse JSON object."}`)
				return
			}
			for k, v := range obj {
				db.set(append(segs[:len(segs):len(segs)], splitPath(k)...), v)
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (db *fakeDB) get(segs []string) any {
	var node any = db.root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

func (db *fakeDB) set(segs []string, v any) {
	if len(segs) == 0 {
		if m, ok := v.(map[string]any); ok {
			db.root = m
		} else {
			db.root = map[string]any{}
		}
		return
	}
	parent := db.root
	for _, s := range segs[:len(segs)-1] {
		next, ok := parent[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			parent[s] = next
		}
		parent = next
	}
	last := segs[len(segs)-1]
	if v == nil {
		delete(parent, last)
		return
	}
	parent[last] = v
}
