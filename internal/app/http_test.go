package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"echoclub/pkg/api"
	"echoclub/pkg/config"
	"echoclub/pkg/logger"
)

func TestOpenAPIServedFromAnyWorkingDirectory(t *testing.T) {
	logger.Init()
	// The spec is compiled in, so serving must not depend on where the
	// process was started.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg := &config.Config{}
	a := &App{eff: config.Effective{Config: cfg}, api: api.NewServer(cfg)}
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/openapi.yaml")
	if err != nil {
		t.Fatalf("GET /openapi.yaml: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "openapi:") {
		t.Fatalf("response is not the OpenAPI document: %.80s", body)
	}
}
