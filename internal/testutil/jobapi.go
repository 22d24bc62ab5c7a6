package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// StartRequest is a launch request received by a JobAPI.
type StartRequest struct {
	WorkflowKey string         `json:"workflowKey"`
	Payload     map[string]any `json:"payload"`
}

// JobAPI is an in-memory jobs HTTP API:
//
//	POST /v1/jobs          starts a job following the default script
//	GET  /v1/jobs/{jobId}  returns the job's next scripted status
//	GET  /readyz           200, or 503 while unavailable
//
// Each status request advances a job by one script entry; the last entry
// repeats. Entries are encoded as JSON unless they are json.RawMessage.
type JobAPI struct {
	server *httptest.Server

	mu          sync.Mutex
	script      []any
	jobs        map[string]*scriptedJob
	starts      []StartRequest
	nextID      int
	launchCode  int
	launchError string
	unavailable bool
	apiKey      string
}

type scriptedJob struct {
	script []any
	polls  int
}

// NewJobAPI starts a JobAPI whose launched jobs follow script. The server is
// closed when the test ends.
func NewJobAPI(tb testing.TB, script ...any) *JobAPI {
	tb.Helper()
	a := &JobAPI{
		script: script,
		jobs:   make(map[string]*scriptedJob),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", a.start)
	mux.HandleFunc("GET /v1/jobs/{jobId}", a.status)
	mux.HandleFunc("GET /readyz", a.ready)
	a.server = httptest.NewServer(a.auth(mux))
	tb.Cleanup(a.server.Close)
	return a
}

// URL returns the base URL of the API.
func (a *JobAPI) URL() string {
	return a.server.URL
}

// RequireAPIKey makes every request require "Bearer key".
func (a *JobAPI) RequireAPIKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiKey = key
}

// AddJob registers a job started elsewhere.
func (a *JobAPI) AddJob(id string, script ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs[id] = &scriptedJob{script: script}
}

// FailLaunches makes launches fail with code and message.
func (a *JobAPI) FailLaunches(code int, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.launchCode = code
	a.launchError = message
}

// SetUnavailable makes status and readiness requests fail with 503.
func (a *JobAPI) SetUnavailable(unavailable bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unavailable = unavailable
}

// Starts returns the launch requests received so far.
func (a *JobAPI) Starts() []StartRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]StartRequest(nil), a.starts...)
}

// Polls returns the number of status requests served for a job.
func (a *JobAPI) Polls(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if job, ok := a.jobs[id]; ok {
		return job.polls
	}
	return 0
}

func (a *JobAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		key := a.apiKey
		a.mu.Unlock()
		if key != "" && r.Header.Get("Authorization") != "Bearer "+key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *JobAPI) start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = append(a.starts, req)
	if a.launchCode != 0 {
		writeJSON(w, a.launchCode, map[string]string{"error": a.launchError})
		return
	}

	a.nextID++
	id := fmt.Sprintf("job-%d", a.nextID)
	a.jobs[id] = &scriptedJob{script: a.script}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": id})
}

func (a *JobAPI) status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("jobId")

	a.mu.Lock()
	if a.unavailable {
		a.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service unavailable"})
		return
	}
	job, ok := a.jobs[id]
	if !ok {
		a.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found: " + id})
		return
	}
	var entry any = map[string]any{"status": "RUNNING"}
	if n := len(job.script); n > 0 {
		entry = job.script[min(job.polls, n-1)]
	}
	job.polls++
	a.mu.Unlock()

	if raw, ok := entry.(json.RawMessage); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *JobAPI) ready(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	unavailable := a.unavailable
	a.mu.Unlock()
	if unavailable {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// JobStatus builds a status payload. Phases are given as name=status pairs.
func JobStatus(status string, phases ...string) map[string]any {
	payload := map[string]any{"status": status}
	if len(phases) > 0 {
		results := make([]map[string]any, 0, len(phases))
		for _, p := range phases {
			name, st, _ := strings.Cut(p, "=")
			results = append(results, map[string]any{"name": name, "status": st})
		}
		payload["phaseResults"] = results
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
