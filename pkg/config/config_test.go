// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
supervisor:
  max_auto_reruns: 3
  max_total_duration: "120s"
  confidence_threshold: 0.7
workfn:
  mode: "http"
  endpoint: "http://localhost:9100/run"
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host: got %q", cfg.API.Host)
	}
	if cfg.Supervisor.MaxAutoReruns != 3 {
		t.Errorf("Supervisor.MaxAutoReruns: got %d", cfg.Supervisor.MaxAutoReruns)
	}
	if d := cfg.Supervisor.MaxTotalDurationOrDefault(300 * time.Second); d != 120*time.Second {
		t.Errorf("MaxTotalDuration: got %v", d)
	}
	if cfg.Supervisor.ConfidenceThreshold != 0.7 {
		t.Errorf("ConfidenceThreshold: got %v", cfg.Supervisor.ConfidenceThreshold)
	}
	if cfg.WorkFn.Mode != "http" {
		t.Errorf("WorkFn.Mode: got %q", cfg.WorkFn.Mode)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestDurationDefaults(t *testing.T) {
	var sc SupervisorConfig
	if d := sc.MaxTotalDurationOrDefault(300 * time.Second); d != 300*time.Second {
		t.Errorf("empty duration: got %v", d)
	}
	sc.MaxTotalDuration = "not-a-duration"
	if d := sc.MaxTotalDurationOrDefault(300 * time.Second); d != 300*time.Second {
		t.Errorf("invalid duration: got %v", d)
	}
	sc.Backoff = "250ms"
	if d := sc.BackoffOrDefault(time.Second); d != 250*time.Millisecond {
		t.Errorf("backoff: got %v", d)
	}

	var wc WorkFnConfig
	if d := wc.TimeoutOrDefault(60 * time.Second); d != 60*time.Second {
		t.Errorf("workfn timeout default: got %v", d)
	}
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  middleware:
    auth: true
    jwt_key: "${RUNPLANE_TEST_JWT_KEY}"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("RUNPLANE_TEST_JWT_KEY", "secret-from-env")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Middleware.JWTKey != "secret-from-env" {
		t.Errorf("JWTKey: got %q", cfg.API.Middleware.JWTKey)
	}
}
