// SPDX-License-Identifier: MIT

package recog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockServer provides a configurable recognition-service mock for testing.
// It keeps a single in-memory session and a bounded event log, mimicking
// the long-poll semantics of the real service.
type MockServer struct {
	*httptest.Server
	mu       sync.Mutex
	session  *Session
	events   []Event
	latest   int64
	tickResp *OpResponse // if set, returned verbatim by /enroll/kyc/tick
	failNext map[string]int
}

// NewMockServer creates a recognition-service mock with no active session.
func NewMockServer() *MockServer {
	mock := &MockServer{failNext: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/session/start", mock.handleStart)
	mux.HandleFunc("/session/status", mock.handleStatus)
	mux.HandleFunc("/session/stop", mock.handleStop)
	mux.HandleFunc("/enroll/capture", mock.handleCapture)
	mux.HandleFunc("/enroll/angle", mock.handleAngle)
	mux.HandleFunc("/enroll/clear-angle", mock.handleClearAngle)
	mux.HandleFunc("/enroll/kyc/tick", mock.handleTick)
	mux.HandleFunc("/enroll/save", mock.handleSave)
	mux.HandleFunc("/enroll/cancel", mock.handleCancel)
	mux.HandleFunc("/events", mock.handleEvents)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// SetSession installs a session snapshot returned by subsequent calls.
func (m *MockServer) SetSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// Session returns the current mock session.
func (m *MockServer) CurrentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// SetTickResponse overrides the response of the tick endpoint.
func (m *MockServer) SetTickResponse(resp *OpResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickResp = resp
}

// FailNext makes the next n calls to the given path return HTTP 500.
func (m *MockServer) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[path] = n
}

// AppendEvent appends a notification event and wakes pending long-polls.
func (m *MockServer) AppendEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Seq <= m.latest {
		ev.Seq = m.latest + 1
	}
	m.latest = ev.Seq
	m.events = append(m.events, ev)
}

func (m *MockServer) failing(w http.ResponseWriter, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext[path] > 0 {
		m.failNext[path]--
		http.Error(w, `{"error":"induced failure"}`, http.StatusInternalServerError)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/session/start") {
		return
	}
	var req StartRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.session = &Session{
		SessionID:    "mock-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		EmployeeID:   req.EmployeeID,
		Name:         req.Name,
		CameraID:     req.CameraID,
		Status:       StatusRunning,
		CurrentAngle: AngleFront,
		Collected:    map[Angle]int{},
	}
	sess := m.session
	m.mu.Unlock()

	writeJSON(w, map[string]interface{}{"session": sess})
}

func (m *MockServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/session/status") {
		return
	}
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"session": sess})
}

func (m *MockServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/session/stop") {
		return
	}
	m.mu.Lock()
	if m.session != nil {
		m.session.Status = StatusStopped
	}
	m.session = nil
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"ok": true})
}

func (m *MockServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/capture") {
		return
	}
	var req struct {
		Angle Angle `json:"angle"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	if m.session != nil {
		if m.session.Collected == nil {
			m.session.Collected = map[Angle]int{}
		}
		m.session.Collected[req.Angle]++
	}
	sess := m.session
	m.mu.Unlock()

	writeJSON(w, OpResponse{Ok: true, Result: &OpResult{Ok: true}, Session: sess})
}

func (m *MockServer) handleAngle(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/angle") {
		return
	}
	var req struct {
		Angle Angle `json:"angle"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	if m.session != nil {
		m.session.CurrentAngle = req.Angle
	}
	sess := m.session
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"session": sess})
}

func (m *MockServer) handleClearAngle(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/clear-angle") {
		return
	}
	var req struct {
		Angle Angle `json:"angle"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	if m.session != nil && m.session.Collected != nil {
		delete(m.session.Collected, req.Angle)
	}
	sess := m.session
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"session": sess})
}

func (m *MockServer) handleTick(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/kyc/tick") {
		return
	}
	m.mu.Lock()
	resp := m.tickResp
	sess := m.session
	m.mu.Unlock()

	if resp != nil {
		writeJSON(w, resp)
		return
	}
	writeJSON(w, OpResponse{Ok: true, Result: &OpResult{Ok: true}, Session: sess})
}

func (m *MockServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/save") {
		return
	}
	m.mu.Lock()
	var saved []Angle
	if m.session != nil {
		for _, a := range Angles {
			if m.session.Collected[a] > 0 {
				saved = append(saved, a)
			}
		}
		m.session.Status = StatusSaved
	}
	m.mu.Unlock()

	var resp SaveResponse
	resp.Result.SavedAngles = saved
	writeJSON(w, resp)
}

func (m *MockServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/enroll/cancel") {
		return
	}
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"ok": true})
}

func (m *MockServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if m.failing(w, "/events") {
		return
	}
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("afterSeq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	waitMs, _ := strconv.Atoi(r.URL.Query().Get("waitMs"))
	if limit <= 0 {
		limit = 50
	}

	deadline := time.Now().Add(time.Duration(waitMs) * time.Millisecond)
	for {
		m.mu.Lock()
		var out []Event
		for _, ev := range m.events {
			if ev.Seq > afterSeq {
				out = append(out, ev)
				if len(out) >= limit {
					break
				}
			}
		}
		latest := m.latest
		m.mu.Unlock()

		if len(out) > 0 || !time.Now().Before(deadline) {
			writeJSON(w, EventsResponse{Events: out, LatestSeq: latest})
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
