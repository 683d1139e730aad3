package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHTTPClient_Detect(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Confidence != 0.3 {
			t.Errorf("confidence = %v, want 0.3", req.Confidence)
		}
		if req.Image != base64.StdEncoding.EncodeToString(jpeg) {
			t.Errorf("image not base64 of the still")
		}

		w.Write([]byte(`{"success":true,"count":2,"detections":[
			{"class_id":3,"class_name":"bao_nhieu","confidence":0.41,"bbox":{"x1":1,"y1":2,"x2":3,"y2":4}},
			{"class_id":15,"class_name":"xin_chao","confidence":0.87,"bbox":{"x1":10,"y1":20,"x2":30,"y2":40}}
		]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, zaptest.NewLogger(t).Sugar())
	res, err := c.Detect(context.Background(), jpeg, 0.3)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if res.Count != 2 {
		t.Errorf("Count = %d, want 2", res.Count)
	}
	p := res.Primary()
	if p.ClassID != "15" || p.ClassName != "xin_chao" {
		t.Errorf("primary = %+v, want xin_chao first", p)
	}
	if p.BBox.X2 != 30 {
		t.Errorf("bbox = %+v", p.BBox)
	}
}

func TestHTTPClient_DetectEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"count":0,"detections":[]}`))
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL, time.Second, nil).Detect(context.Background(), []byte("x"), 0.3)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Primary() != nil {
		t.Error("empty response should have no primary detection")
	}
}

func TestHTTPClient_DetectRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"count":0,"detections":[],"error":"Model not loaded"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second, nil).Detect(context.Background(), []byte("x"), 0.3)
	if !errors.Is(err, ErrRemote) {
		t.Errorf("error = %v, want ErrRemote", err)
	}
}

func TestHTTPClient_DetectHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second, nil).Detect(context.Background(), []byte("x"), 0.3)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("a 500 response is not a timeout")
	}
}

func TestHTTPClient_DetectTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	start := time.Now()
	_, err := NewHTTPClient(srv.URL, 50*time.Millisecond, nil).Detect(context.Background(), []byte("x"), 0.3)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestHTTPClient_DetectCanceled(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewHTTPClient(srv.URL, 5*time.Second, nil).Detect(ctx, []byte("x"), 0.3)
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation should not be reported as a timeout")
	}
}

func TestHTTPClient_HealthAndClasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"healthy","model_loaded":true}`))
		case "/classes":
			w.Write([]byte(`{"classes":{"0":"an","1":"ban"},"count":2}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "healthy" || !h.ModelLoaded {
		t.Errorf("Health = %+v", h)
	}

	cl, err := c.Classes(context.Background())
	if err != nil {
		t.Fatalf("Classes failed: %v", err)
	}
	if cl.Count != 2 || cl.Classes["1"] != "ban" {
		t.Errorf("Classes = %+v", cl)
	}
}
