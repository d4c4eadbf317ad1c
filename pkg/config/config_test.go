package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uvc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StallThreshold != 120 {
		t.Errorf("StallThreshold = %d, want 120", cfg.StallThreshold)
	}
	if cfg.DiscoveryInterval != 3*time.Second {
		t.Errorf("DiscoveryInterval = %v, want 3s", cfg.DiscoveryInterval)
	}
	if cfg.Transport != "bulk" {
		t.Errorf("Transport = %q, want bulk", cfg.Transport)
	}
	fns, err := cfg.StaticFunctions()
	if err != nil {
		t.Fatalf("StaticFunctions failed: %v", err)
	}
	if fns != nil {
		t.Errorf("StaticFunctions = %v, want none", fns)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
transport: isochronous
speed: super
stall_threshold: 30
watchdog_period: 10s
source: pattern
functions:
  - name: uvc.rgb
    device: /dev/video4
    max_packet: 1024
    formats:
      - format: mjpeg
        frames:
          - width: 1280
            height: 720
            intervals: [333333, 1000000]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StallThreshold != 30 {
		t.Errorf("StallThreshold = %d, want 30", cfg.StallThreshold)
	}
	if cfg.WatchdogPeriod != 10*time.Second {
		t.Errorf("WatchdogPeriod = %v, want 10s", cfg.WatchdogPeriod)
	}
	if cfg.NumBuffers != 2 {
		t.Errorf("NumBuffers = %d, want the default 2", cfg.NumBuffers)
	}

	fns, err := cfg.StaticFunctions()
	if err != nil {
		t.Fatalf("StaticFunctions failed: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("len(fns) = %d, want 1", len(fns))
	}
	fn := fns[0]
	if fn.ID != 4 || fn.Role != camera.RoleRGB {
		t.Errorf("function = %v, want video4 rgb", fn)
	}
	if len(fn.Formats) != 1 || fn.Formats[0].Format != formats.FormatMJPEG {
		t.Fatalf("formats = %+v, want one MJPEG", fn.Formats)
	}
	if got := fn.Formats[0].Frames[0].Intervals; len(got) != 2 || got[0] != 333333 {
		t.Errorf("intervals = %v, want [333333 1000000]", got)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("UVC_STALL_THRESHOLD", "7")
	t.Setenv("UVC_SOURCE", "v4l2:/dev/video0")
	t.Setenv("UVC_TRANSPORT", "isoc")

	cfg, err := Load(writeConfig(t, "stall_threshold: 30\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StallThreshold != 7 {
		t.Errorf("StallThreshold = %d, want 7", cfg.StallThreshold)
	}
	kind, dev, err := cfg.SourceKind()
	if err != nil {
		t.Fatalf("SourceKind failed: %v", err)
	}
	if kind != "v4l2" || dev != "/dev/video0" {
		t.Errorf("SourceKind = %q %q, want v4l2 /dev/video0", kind, dev)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"transport", func(c *Config) { c.Transport = "interrupt" }},
		{"speed", func(c *Config) { c.Speed = "warp" }},
		{"stall threshold", func(c *Config) { c.StallThreshold = 0 }},
		{"buffers", func(c *Config) { c.NumBuffers = 64 }},
		{"event timeout", func(c *Config) { c.EventTimeout = 0 }},
		{"source", func(c *Config) { c.Source = "v4l2:" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"device", func(c *Config) {
			c.Functions = []FunctionConfig{{Name: "uvc.0", Device: "/dev/null"}}
		}},
		{"format", func(c *Config) {
			c.Functions = []FunctionConfig{{
				Name:    "uvc.0",
				Device:  "/dev/video0",
				Formats: []FormatConfig{{Format: "rgb24"}},
			}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid configuration")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Validate(Default()) failed: %v", err)
	}
}
