package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testConfig(t *testing.T, srv *httptest.Server) *Config {
	t.Helper()
	return &Config{SecretKey: "secret-alice", Edge: srv.URL, EdgeIP: "203.0.113.7"}
}

func TestCheckAuthorizationReportsEdgeStatus(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newControlClient(testConfig(t, srv))
	ok, err := c.CheckAuthorization()
	if err != nil {
		t.Fatalf("CheckAuthorization: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true for a 200 response")
	}
	if gotAuth != "Bearer secret-alice" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}

func TestCheckAuthorizationRejectsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newControlClient(testConfig(t, srv))
	ok, err := c.CheckAuthorization()
	if err != nil {
		t.Fatalf("CheckAuthorization: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a 403 response")
	}
}

func TestConnectDecodesWorkerPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "worker": 4455})
	}))
	defer srv.Close()

	c := newControlClient(testConfig(t, srv))
	port, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if port != 4455 {
		t.Fatalf("port = %d, want 4455", port)
	}
}

func TestCreateEdgeBuildsDialAddressFromEdgeIP(t *testing.T) {
	var gotForm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.Form.Encode()
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "port": 30001})
	}))
	defer srv.Close()

	c := newControlClient(testConfig(t, srv))
	status, target, err := c.CreateEdge("web", Tunnel{Target: "127.0.0.1:8080", Protocol: "tcp", Mode: "reverse"})
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	if status != "ok" {
		t.Fatalf("status = %q, want ok", status)
	}
	if target != "203.0.113.7:30001" {
		t.Fatalf("target = %q, want 203.0.113.7:30001", target)
	}
	if gotForm == "" {
		t.Fatalf("request form was empty")
	}
}

func TestGoodbyeReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := newControlClient(testConfig(t, srv))
	status, err := c.Goodbye()
	if err != nil {
		t.Fatalf("Goodbye: %v", err)
	}
	if status != "ok" {
		t.Fatalf("status = %q, want ok", status)
	}
}
