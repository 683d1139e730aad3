package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/vocab"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if !strings.HasPrefix(contentType, "application/json") {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{
		Vocabulary: vocab.NewStaticSource([]vocab.Item{{ClassID: "0", ClassName: "hello"}}),
		Detector:   detect.NewMockDetector(),
	})

	tests := []struct {
		path string
		want int
	}{
		{"/api/vocabulary", http.StatusOK},
		{"/api/detection/health", http.StatusOK},
		{"/api/detection/classes", http.StatusOK},
		// No store or resolver: learner routes are not registered.
		{"/api/sessions", http.StatusNotFound},
		// No app: practice routes are not registered.
		{"/api/practice/state", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}

func readFrame(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()

	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read part header: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" && length >= 0 {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, _ = strconv.Atoi(v)
		}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return buf
}

func TestStreamHandler_ServesPresentedFrames(t *testing.T) {
	surface := display.New()
	surface.Attach(image2x2)
	surface.Present([]byte("frame-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/stream", NewStreamHandler(ctx, surface).Serve)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type = %q", ct)
	}

	br := bufio.NewReader(resp.Body)
	if got := readFrame(t, br); string(got) != "frame-1" {
		t.Errorf("first frame = %q, want frame-1", got)
	}

	surface.Present([]byte("frame-2"))
	if got := readFrame(t, br); string(got) != "frame-2" {
		t.Errorf("second frame = %q, want frame-2", got)
	}

	cancel()
	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, br)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
}

type fakeEvents struct {
	ch chan app.Event
}

func (f *fakeEvents) Subscribe() (<-chan app.Event, func()) {
	return f.ch, func() {}
}

func (f *fakeEvents) State() app.State {
	return app.State{Status: app.StatusWaiting}
}

func TestEventsHandler_PushesStateAndEvents(t *testing.T) {
	src := &fakeEvents{ch: make(chan app.Event, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/events", NewEventsHandler(ctx, src, zaptest.NewLogger(t).Sugar()).Serve)
	ts := httptest.NewServer(r)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type  string    `json:"type"`
		State app.State `json:"state"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if first.Type != "state" || first.State.Status != app.StatusWaiting {
		t.Errorf("unexpected first message %+v", first)
	}

	src.ch <- app.Event{Type: app.EventStatus, Status: "hello"}
	var ev app.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != app.EventStatus || ev.Status != "hello" {
		t.Errorf("unexpected event %+v", ev)
	}

	cancel()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestServer_PracticeWithAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Users().Create(context.Background(), &store.User{ID: "u1", Name: "Lan", Token: "tok"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	cam := capture.NewMockCamera(nil, true)
	cam.OpenErr = capture.ErrPermissionDenied

	a := app.New(app.Config{
		Vocabulary: vocab.NewStaticSource([]vocab.Item{{ClassID: "0", ClassName: "hello"}}),
		Camera:     cam,
		Detector:   detect.NewMockDetector(),
		Logger:     zaptest.NewLogger(t).Sugar(),
	})
	t.Cleanup(func() { a.Close() })

	s := New(Config{Store: st, App: a, Resolver: auth.NewStoreResolver(st), Logger: zaptest.NewLogger(t).Sugar()})
	t.Cleanup(s.Close)

	request := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		return rec
	}

	if rec := request(http.MethodGet, "/api/vocabulary", "bogus"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: expected status 401, got %d", rec.Code)
	}
	if rec := request(http.MethodGet, "/api/progress", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous progress: expected status 401, got %d", rec.Code)
	}
	if rec := request(http.MethodGet, "/api/progress", "tok"); rec.Code != http.StatusOK {
		t.Errorf("progress: expected status 200, got %d", rec.Code)
	}

	rec := request(http.MethodPost, "/api/practice/start", "tok")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("start: expected status 503, got %d: %s", rec.Code, rec.Body)
	}

	rec = request(http.MethodGet, "/api/practice/state", "tok")
	var state app.State
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Session.State != session.StateActive || state.Session.UserID != "u1" {
		t.Errorf("unexpected session %+v", state.Session)
	}
	if state.Streaming || state.CameraError == "" {
		t.Errorf("expected a camera error without streaming, got %+v", state)
	}

	rec = request(http.MethodPost, "/api/practice/exit", "tok")
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Session.State != session.StateIdle {
		t.Errorf("state after exit = %q, want idle", state.Session.State)
	}
}

var image2x2 = image.Pt(2, 2)
