package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/httpspeed/internal/kvstore"
	"github.com/m-lab/httpspeed/pkg/client"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	got := Default().ClientConfig()
	want := client.Config{
		PingURL:       spec.DefaultPingURL,
		DownloadURL:   spec.DefaultDownloadURL,
		UploadURL:     spec.DefaultUploadURL,
		DownloadBytes: spec.DefaultDownloadBytes,
		UploadBytes:   spec.DefaultUploadBytes,
		Timeout:       spec.DefaultTimeout,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Default() mismatch (-want +got):\n%s", diff)
	}
	cfg := Default()
	if cfg.Store.Backend != kvstore.BackendFS || cfg.Store.Path != defaultFSPath {
		t.Errorf("unexpected default store: %+v", cfg.Store)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "full file",
			content: `
endpoints:
  ping: http://localhost:8080/speedtest/v1/ping
  download: http://localhost:8080/speedtest/v1/download?bytes={bytes}
  upload: http://localhost:8080/speedtest/v1/upload
transfer:
  download_bytes: 1000
  upload_bytes: 2000
timeout: 5s
store:
  backend: sqlite
  path: /tmp/history.db
datadir: /tmp/data
`,
			check: func(t *testing.T, cfg Config) {
				cc := cfg.ClientConfig()
				if cc.PingURL != "http://localhost:8080/speedtest/v1/ping" ||
					cc.DownloadBytes != 1000 || cc.UploadBytes != 2000 ||
					cc.Timeout != 5*time.Second {
					t.Errorf("unexpected client config: %+v", cc)
				}
				if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/history.db" ||
					cfg.DataDir != "/tmp/data" {
					t.Errorf("unexpected config: %+v", cfg)
				}
			},
		},
		{
			name:    "timeout in seconds",
			content: "timeout: 1.5\n",
			check: func(t *testing.T, cfg Config) {
				if cfg.Timeout.Duration() != 1500*time.Millisecond {
					t.Errorf("timeout = %v, want 1.5s", cfg.Timeout.Duration())
				}
			},
		},
		{
			name:    "zero timeout disables it",
			content: "timeout: 0\n",
			check: func(t *testing.T, cfg Config) {
				if cfg.Timeout.Duration() != 0 {
					t.Errorf("timeout = %v, want 0", cfg.Timeout.Duration())
				}
			},
		},
		{
			name:    "sqlite default path",
			content: "store:\n  backend: sqlite\n",
			check: func(t *testing.T, cfg Config) {
				if cfg.Store.Path != defaultSQLitePath {
					t.Errorf("store path = %q, want %q", cfg.Store.Path, defaultSQLitePath)
				}
			},
		},
		{
			name:    "empty file",
			content: "",
			check: func(t *testing.T, cfg Config) {
				if diff := cmp.Diff(Default(), cfg); diff != "" {
					t.Errorf("config mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:    "invalid scheme",
			content: "endpoints:\n  ping: ftp://example.com\n",
			wantErr: true,
		},
		{
			name:    "negative size",
			content: "transfer:\n  upload_bytes: -1\n",
			wantErr: true,
		},
		{
			name:    "negative timeout",
			content: "timeout: -1s\n",
			wantErr: true,
		},
		{
			name:    "invalid timeout",
			content: "timeout: soon\n",
			wantErr: true,
		},
		{
			name:    "unknown backend",
			content: "store:\n  backend: redis\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: "endpoints: [",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("LoadConfig() did not fail")
	}
}
