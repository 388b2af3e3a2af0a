package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.Capture.SampleRate)
	}
	if cfg.Capture.FrameBytes != 2048 {
		t.Errorf("FrameBytes = %d, want 2048", cfg.Capture.FrameBytes)
	}
	if got := cfg.Capture.ReadTimeoutDuration(); got != 250*time.Millisecond {
		t.Errorf("ReadTimeout = %v", got)
	}
	if cfg.Capture.Microphone != "portaudio" || cfg.Capture.Playback != "loopback" || cfg.Capture.Sink != "local" {
		t.Errorf("unexpected source defaults: %+v", cfg.Capture)
	}
	if !strings.HasSuffix(cfg.Capture.LocalDir, filepath.Join("callrec", "recordings")) {
		t.Errorf("LocalDir = %q", cfg.Capture.LocalDir)
	}
	if len(cfg.Capture.Usages) != 2 {
		t.Errorf("Usages = %v", cfg.Capture.Usages)
	}
	if !*cfg.Capture.AutoStopOnIdle {
		t.Error("AutoStopOnIdle should default to true")
	}
	if cfg.Grant.TTLDuration() != time.Hour {
		t.Errorf("TTL = %v", cfg.Grant.TTLDuration())
	}
	if cfg.Control.Addr != "127.0.0.1:8080" || cfg.Control.RateLimit != 30 {
		t.Errorf("unexpected control defaults: %+v", cfg.Control)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("CALLREC_TEST_SECRET", "s3cret")

	cfg, err := Parse([]byte(`
grant:
  secret: ${CALLREC_TEST_SECRET}
capture:
  auto_stop_on_idle: false
  sink: shared
  shared_dir: /tmp/shared
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Grant.Secret != "s3cret" {
		t.Errorf("Secret = %q", cfg.Grant.Secret)
	}
	if *cfg.Capture.AutoStopOnIdle {
		t.Error("explicit false must survive defaults")
	}
	if cfg.Capture.SharedDir != "/tmp/shared" {
		t.Errorf("SharedDir = %q", cfg.Capture.SharedDir)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"odd frame", "capture:\n  frame_bytes: 1001\n", "frame_bytes"},
		{"bad timeout", "capture:\n  read_timeout: soon\n", "read_timeout"},
		{"unknown mic", "capture:\n  microphone: bluetooth\n", "capture.microphone"},
		{"file mic without path", "capture:\n  microphone: file\n", "mic_file"},
		{"file playback without path", "capture:\n  playback: file\n", "playback_file"},
		{"unknown sink", "capture:\n  sink: s3\n", "capture.sink"},
		{"unknown usage", "capture:\n  usages: [alarm]\n", "alarm"},
		{"negative ttl", "grant:\n  ttl: -1m\n", "grant.ttl"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"pushover without keys", "pushover:\n  enabled: true\n", "pushover"},
		{"homeassistant without url", "homeassistant:\n  enabled: true\n  token: t\n", "homeassistant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
