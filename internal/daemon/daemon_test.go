package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/fx"

	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/lock"
)

func testParams(t *testing.T) Params {
	t.Helper()
	home := t.TempDir()
	t.Setenv("WPPCRM_HOME", home)
	t.Setenv("WPPCRM_GATEWAY", "")
	return Params{
		Instance:   "test",
		ConfigPath: filepath.Join(home, "missing.toml"),
		Addr:       "127.0.0.1:0",
	}
}

func call(t *testing.T, method, url, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestDaemonLifecycle(t *testing.T) {
	p := testParams(t)

	var srv *Server
	var authSvc *auth.Service
	app := fx.New(Module(p), fx.NopLogger, fx.Populate(&srv, &authSvc))
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if !lock.Running(instance.Dir(p.Instance)) {
		t.Error("instance lock should be held while running")
	}

	base := "http://" + srv.Addr().String()

	if code, _ := call(t, http.MethodGet, base+"/api/ping", "", ""); code != http.StatusOK {
		t.Fatalf("ping = %d", code)
	}

	if _, err := authSvc.CreateUser("ops@example.com", "Ops", auth.RoleAdmin, "secret"); err != nil {
		t.Fatal(err)
	}
	code, out := call(t, http.MethodPost, base+"/api/auth/login", "", `{"email":"ops@example.com","password":"secret"}`)
	if code != http.StatusOK {
		t.Fatalf("login = %d %v", code, out)
	}
	token, _ := out["token"].(string)

	code, out = call(t, http.MethodPost, base+"/api/zapi/webhook", "", `{"phone":"5511999","message":"hello"}`)
	if code != http.StatusOK || out["stored"] != true {
		t.Fatalf("webhook = %d %v", code, out)
	}

	code, out = call(t, http.MethodGet, base+"/api/messages?contact=5511999", token, "")
	if code != http.StatusOK {
		t.Fatalf("messages = %d %v", code, out)
	}
	if rows, _ := out["data"].([]any); len(rows) != 1 {
		t.Errorf("expected 1 message, got %v", out["data"])
	}

	code, out = call(t, http.MethodGet, base+"/api/status", token, "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	data, _ := out["data"].(map[string]any)
	if data["state"] != "CONNECTED" {
		t.Errorf("state = %v, want CONNECTED", data["state"])
	}
	if data["driver"] != "zapi" {
		t.Errorf("driver = %v, want zapi", data["driver"])
	}

	// No gateway URL is configured, so the proxy reports a failed send without erroring.
	code, out = call(t, http.MethodPost, base+"/api/gateway/send-text", token, `{"phone":"5511999","message":"hi"}`)
	if code != http.StatusOK || out["ok"] != false {
		t.Errorf("send-text = %d %v", code, out)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if lock.Running(instance.Dir(p.Instance)) {
		t.Error("instance lock should be released after stop")
	}
}

// TestSecondDaemonRefused verifies that the instance lock keeps a second daemon from starting.
func TestSecondDaemonRefused(t *testing.T) {
	p := testParams(t)

	lk, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	app := fx.New(Module(p), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected startup to fail while the lock is held")
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	p := testParams(t)
	if err := fx.ValidateApp(Module(p), fx.NopLogger); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}
