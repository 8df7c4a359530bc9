package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"ZoneSentinel/internal/metrics"
	"ZoneSentinel/internal/model"
)

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := newLogger("loud", "console"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveSignal(model.H4, model.T1)

	rr := httptest.NewRecorder()
	metricsMux(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `zonesentinel_signals_total{tf="H4",tier="T1"} 1`) {
		t.Fatalf("metrics response %d:\n%s", rr.Code, rr.Body.String())
	}
}

func TestRunCommandWithMockData(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "symbol: TEST\ndata:\n  source: mock\n  timeframes: [D1, H4, H1]\n  mock_bars: 400\nlog:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"ZS_SYMBOL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "ZS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--config", cfgPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "TEST H1") || !strings.Contains(out.String(), "400 bars") {
		t.Fatalf("output:\n%s", out.String())
	}
}
