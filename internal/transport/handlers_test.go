package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/instance"
	"github.com/ndrandal/marketsim/internal/template"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	fac := factory.New(template.NewProvider(), factory.Options{PoolSize: 2, TickFPS: 30, PushBufferSize: 16})
	ctrl := instance.New(fac)
	srv := NewServer(ctrl, 16)
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, mux
}

func waitForStage(t *testing.T, mux *http.ServeMux, requestId string, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest("GET", "/market-instances/progress/"+requestId, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		var env envelope
		json.Unmarshal(w.Body.Bytes(), &env)
		if data, ok := env.Data.(map[string]any); ok && data["Stage"] == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for stage %q", want)
}

func createInstance(t *testing.T, mux *http.ServeMux) (instanceId, requestId string) {
	t.Helper()
	body := strings.NewReader(`{"templateId":"T2-conservative","name":"sandbox"}`)
	req := httptest.NewRequest("POST", "/market-instances", body)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := env.Data.(map[string]any)
	instanceId = data["instanceId"].(string)
	requestId = data["requestId"].(string)
	waitForStage(t, mux, requestId, "Complete")
	return instanceId, requestId
}

func TestHandleCreateRejectsMissingFields(t *testing.T) {
	_, mux := newTestServer(t)
	req := httptest.NewRequest("POST", "/market-instances", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleCreateAndList(t *testing.T) {
	_, mux := newTestServer(t)
	instanceId, _ := createInstance(t, mux)

	req := httptest.NewRequest("GET", "/market-instances", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	list := env.Data.([]any)
	if len(list) != 1 {
		t.Fatalf("list len = %d, want 1", len(list))
	}
	first := list[0].(map[string]any)
	if first["id"] != instanceId {
		t.Fatalf("listed id = %v, want %v", first["id"], instanceId)
	}
}

func TestHandleDetailUnknownInstance(t *testing.T) {
	_, mux := newTestServer(t)
	req := httptest.NewRequest("GET", "/market-instances/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.Success {
		t.Fatal("expected success=false")
	}
	if env.Error == nil || env.Error.Code != "InstanceNotFound" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestHandleDestroyRemovesInstance(t *testing.T) {
	_, mux := newTestServer(t)
	instanceId, _ := createInstance(t, mux)

	req := httptest.NewRequest("DELETE", "/market-instances/"+instanceId, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/market-instances/"+instanceId, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status after destroy = %d, want 404", w.Code)
	}
}

func TestHandleSetAccelerationValidatesRange(t *testing.T) {
	_, mux := newTestServer(t)
	instanceId, _ := createInstance(t, mux)

	req := httptest.NewRequest("PATCH", "/market-instances/"+instanceId+"/time", strings.NewReader(`{"acceleration":5000}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest("PATCH", "/market-instances/"+instanceId+"/time", strings.NewReader(`{"acceleration":2.0}`))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleKLineRejectsUnknownGranularity(t *testing.T) {
	_, mux := newTestServer(t)
	instanceId, _ := createInstance(t, mux)

	req := httptest.NewRequest("GET", "/market-instances/"+instanceId+"/stocks/AAA/kline?granularity=3m", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleKLineWithoutGranularitySucceeds(t *testing.T) {
	_, mux := newTestServer(t)
	instanceId, _ := createInstance(t, mux)
	time.Sleep(100 * time.Millisecond)

	req := httptest.NewRequest("GET", "/market-instances/"+instanceId+"/stocks/AAA/kline", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleListScopesByOwnerHeader(t *testing.T) {
	_, mux := newTestServer(t)

	body := strings.NewReader(`{"templateId":"T2-conservative","name":"alice-sandbox"}`)
	req := httptest.NewRequest("POST", "/market-instances", body)
	req.Header.Set("X-User-Id", "alice")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	data := env.Data.(map[string]any)
	waitForStage(t, mux, data["requestId"].(string), "Complete")

	req = httptest.NewRequest("GET", "/market-instances", nil)
	req.Header.Set("X-User-Id", "bob")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	json.Unmarshal(w.Body.Bytes(), &env)
	if list := env.Data.([]any); len(list) != 0 {
		t.Fatalf("bob's list len = %d, want 0", len(list))
	}

	req = httptest.NewRequest("GET", "/market-instances", nil)
	req.Header.Set("X-User-Id", "alice")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	json.Unmarshal(w.Body.Bytes(), &env)
	if list := env.Data.([]any); len(list) != 1 {
		t.Fatalf("alice's list len = %d, want 1", len(list))
	}
}

func TestHandleDetailForbiddenForNonOwner(t *testing.T) {
	_, mux := newTestServer(t)

	body := strings.NewReader(`{"templateId":"T2-conservative","name":"alice-sandbox"}`)
	req := httptest.NewRequest("POST", "/market-instances", body)
	req.Header.Set("X-User-Id", "alice")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	data := env.Data.(map[string]any)
	instanceId := data["instanceId"].(string)
	waitForStage(t, mux, data["requestId"].(string), "Complete")

	req = httptest.NewRequest("GET", "/market-instances/"+instanceId, nil)
	req.Header.Set("X-User-Id", "bob")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	_, mux := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
