// Package config loads the gadget daemon configuration. Values come from the
// defaults, then an optional YAML file, then UVC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ConfigFSRoot string `yaml:"configfs_root"`
	UDCRoot      string `yaml:"udc_root"`

	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	EventTimeout      time.Duration `yaml:"event_timeout"`
	ConsumeTimeout    time.Duration `yaml:"consume_timeout"`
	WatchdogPeriod    time.Duration `yaml:"watchdog_period"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`

	// StallThreshold consecutive consume timeouts restart the role's
	// capture pipeline.
	StallThreshold int `yaml:"stall_threshold"`
	// BulkTimeoutLimit consecutive event waits without a writable buffer
	// restart all instances. Bulk transport only.
	BulkTimeoutLimit int `yaml:"bulk_timeout_limit"`
	NumBuffers       int `yaml:"num_buffers"`

	Transport string `yaml:"transport"`
	Speed     string `yaml:"speed"`

	// Functions, when set, replaces configfs discovery.
	Functions []FunctionConfig `yaml:"functions"`

	// Source selects the frame producer: none, pattern or v4l2:<device>.
	Source string `yaml:"source"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Mode is production (JSON) or development (console).
	Mode string `yaml:"mode"`
}

type FunctionConfig struct {
	Name      string         `yaml:"name"`
	Role      string         `yaml:"role"`
	Device    string         `yaml:"device"`
	MaxPacket uint32         `yaml:"max_packet"`
	MaxBurst  uint32         `yaml:"max_burst"`
	Mult      uint32         `yaml:"mult"`
	Formats   []FormatConfig `yaml:"formats"`
}

type FormatConfig struct {
	Format string          `yaml:"format"`
	Frames []formats.Frame `yaml:"frames"`
}

func Default() *Config {
	return &Config{
		ConfigFSRoot:      "/sys/kernel/config/usb_gadget",
		UDCRoot:           "/sys/class/udc",
		DiscoveryInterval: 3 * time.Second,
		EventTimeout:      2 * time.Second,
		ConsumeTimeout:    time.Second,
		WatchdogPeriod:    60 * time.Second,
		ReadyTimeout:      5 * time.Second,
		StallThreshold:    120,
		BulkTimeoutLimit:  50,
		NumBuffers:        2,
		Transport:         "bulk",
		Speed:             "high",
		Source:            "none",
		Log: LogConfig{
			Level: "info",
			Mode:  "production",
		},
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ConfigFSRoot = getEnvOrDefault("UVC_CONFIGFS_ROOT", c.ConfigFSRoot)
	c.UDCRoot = getEnvOrDefault("UVC_UDC_ROOT", c.UDCRoot)
	c.Transport = getEnvOrDefault("UVC_TRANSPORT", c.Transport)
	c.Speed = getEnvOrDefault("UVC_SPEED", c.Speed)
	c.Source = getEnvOrDefault("UVC_SOURCE", c.Source)
	c.Log.Level = getEnvOrDefault("UVC_LOG_LEVEL", c.Log.Level)
	c.Log.Mode = getEnvOrDefault("UVC_LOG_MODE", c.Log.Mode)
	c.StallThreshold = getEnvAsIntOrDefault("UVC_STALL_THRESHOLD", c.StallThreshold)
	c.BulkTimeoutLimit = getEnvAsIntOrDefault("UVC_BULK_TIMEOUT_LIMIT", c.BulkTimeoutLimit)
	c.NumBuffers = getEnvAsIntOrDefault("UVC_NUM_BUFFERS", c.NumBuffers)
	c.DiscoveryInterval = getEnvAsDurationOrDefault("UVC_DISCOVERY_INTERVAL", c.DiscoveryInterval)
	c.WatchdogPeriod = getEnvAsDurationOrDefault("UVC_WATCHDOG_PERIOD", c.WatchdogPeriod)
}

func (c *Config) Validate() error {
	if _, err := streaming.ParseTransport(c.Transport); err != nil {
		return err
	}
	if _, err := streaming.ParseSpeed(c.Speed); err != nil {
		return err
	}
	if c.StallThreshold < 1 {
		return fmt.Errorf("stall_threshold must be positive, got %d", c.StallThreshold)
	}
	if c.BulkTimeoutLimit < 1 {
		return fmt.Errorf("bulk_timeout_limit must be positive, got %d", c.BulkTimeoutLimit)
	}
	if c.NumBuffers < 1 || c.NumBuffers > 32 {
		return fmt.Errorf("num_buffers must be in [1, 32], got %d", c.NumBuffers)
	}
	for name, d := range map[string]time.Duration{
		"discovery_interval": c.DiscoveryInterval,
		"event_timeout":      c.EventTimeout,
		"consume_timeout":    c.ConsumeTimeout,
		"watchdog_period":    c.WatchdogPeriod,
		"ready_timeout":      c.ReadyTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if _, _, err := c.SourceKind(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Mode != "production" && c.Log.Mode != "development" {
		return fmt.Errorf("unknown log mode %q", c.Log.Mode)
	}
	if _, err := c.StaticFunctions(); err != nil {
		return err
	}
	return nil
}

// SourceKind splits Source into its kind and, for v4l2, the capture device.
func (c *Config) SourceKind() (kind, device string, err error) {
	switch {
	case c.Source == "" || c.Source == "none":
		return "none", "", nil
	case c.Source == "pattern":
		return "pattern", "", nil
	case strings.HasPrefix(c.Source, "v4l2:"):
		device = strings.TrimPrefix(c.Source, "v4l2:")
		if device == "" {
			return "", "", fmt.Errorf("source %q names no device", c.Source)
		}
		return "v4l2", device, nil
	}
	return "", "", fmt.Errorf("unknown source %q", c.Source)
}

// StaticFunctions converts the configured functions. It returns nil when
// none are configured.
func (c *Config) StaticFunctions() ([]camera.Function, error) {
	transport, err := streaming.ParseTransport(c.Transport)
	if err != nil {
		return nil, err
	}
	speed, err := streaming.ParseSpeed(c.Speed)
	if err != nil {
		return nil, err
	}

	var fns []camera.Function
	for i, fc := range c.Functions {
		role, err := camera.ParseRole(fc.Role)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		if fc.Role == "" {
			role = camera.RoleFromName(fc.Name)
		}
		id, err := nodeIndex(fc.Device)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		fn := camera.Function{
			ID:                 id,
			Name:               fc.Name,
			DevicePath:         fc.Device,
			Role:               role,
			StreamingInterface: 1,
			Transport:          transport,
			Speed:              speed,
			MaxPacket:          fc.MaxPacket,
			MaxBurst:           fc.MaxBurst,
			Mult:               fc.Mult,
		}
		for _, f := range fc.Formats {
			pf, err := formats.ParseFormat(f.Format)
			if err != nil {
				return nil, fmt.Errorf("function %d: %w", i, err)
			}
			fn.Formats = append(fn.Formats, formats.FormatDescriptor{Format: pf, Frames: f.Frames})
		}
		if len(fn.Formats) > 0 {
			if err := fn.Formats.Validate(); err != nil {
				return nil, fmt.Errorf("function %d: %w", i, err)
			}
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// nodeIndex extracts N from a /dev/videoN path.
func nodeIndex(device string) (int, error) {
	base := filepath.Base(device)
	if !strings.HasPrefix(base, "video") {
		return 0, fmt.Errorf("device %q is not a video node", device)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
	if err != nil {
		return 0, fmt.Errorf("device %q is not a video node", device)
	}
	return n, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
