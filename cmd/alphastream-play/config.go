package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	uri         string
	encrypted   bool
	sceneID     uint
	version     string
	baseURL     string
	width       int
	height      int
	mode        string
	startFrame  int
	frameCount  int
	outPath     string
	logFormat   string
	logLevel    string
	metricsAddr string

	runtimeThreads int
	cacheCapacity  int
	prefetchWindow int
	timeoutSeconds int
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	uri := flag.String("uri", "", "Container file path")
	encrypted := flag.Bool("encrypted", false, "Open the encrypted container variant")
	sceneID := flag.Uint("scene-id", 0, "Scene id (encrypted variant)")
	ver := flag.String("scene-version", "", "Scene version string (encrypted variant)")
	baseURL := flag.String("base-url", "", "Key derivation base_url override (default: uri basename)")
	width := flag.Int("width", 512, "Mask width")
	height := flag.Int("height", 512, "Mask height")
	mode := flag.String("mode", "bitmap", "Processing mode: bitmap|strip|both")
	startFrame := flag.Int("start-frame", 0, "First frame index to play")
	frameCount := flag.Int("frame-count", -1, "Number of frames to play (-1 = to end)")
	outPath := flag.String("out", "", "Path to write raw grayscale frames (empty = stdout, the video-encoder piping point)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	runtimeThreads := flag.Int("runtime-threads", 0, "Decode worker pool size (0 = auto)")
	cacheCapacity := flag.Int("cache-capacity", 512, "Ring-buffer cache capacity")
	prefetchWindow := flag.Int("prefetch-window", 16, "Frames scheduled per prefetch")
	timeoutSeconds := flag.Int("timeout-seconds", 30, "Upper bound for a single network fetch")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.uri = *uri
	cfg.encrypted = *encrypted
	cfg.sceneID = *sceneID
	cfg.version = *ver
	cfg.baseURL = *baseURL
	cfg.width = *width
	cfg.height = *height
	cfg.mode = *mode
	cfg.startFrame = *startFrame
	cfg.frameCount = *frameCount
	cfg.outPath = *outPath
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.runtimeThreads = *runtimeThreads
	cfg.cacheCapacity = *cacheCapacity
	cfg.prefetchWindow = *prefetchWindow
	cfg.timeoutSeconds = *timeoutSeconds

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.uri == "" {
		return errors.New("uri is required")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.mode {
	case "bitmap", "strip", "both":
	default:
		return fmt.Errorf("invalid mode: %s", c.mode)
	}
	if c.encrypted && c.version == "" {
		return errors.New("scene-version is required for --encrypted")
	}
	if c.width <= 0 || c.height <= 0 {
		return fmt.Errorf("width/height must be > 0 (got %dx%d)", c.width, c.height)
	}
	if c.runtimeThreads < 0 || c.runtimeThreads > 64 {
		return fmt.Errorf("runtime-threads must be in [0,64] (got %d)", c.runtimeThreads)
	}
	if c.cacheCapacity < 1 || c.cacheCapacity > 4096 {
		return fmt.Errorf("cache-capacity must be in [1,4096] (got %d)", c.cacheCapacity)
	}
	if c.prefetchWindow < 1 || c.prefetchWindow > 500 {
		return fmt.Errorf("prefetch-window must be in [1,500] (got %d)", c.prefetchWindow)
	}
	if c.timeoutSeconds < 1 || c.timeoutSeconds > 300 {
		return fmt.Errorf("timeout-seconds must be in [1,300] (got %d)", c.timeoutSeconds)
	}
	return nil
}

// applyEnvOverrides maps ALPHASTREAM_PLAY_* environment variables onto cfg,
// unless the corresponding flag was explicitly set (flag wins over env).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["uri"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_URI"); ok && v != "" {
			c.uri = v
		}
	}
	if _, ok := set["encrypted"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_ENCRYPTED"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.encrypted = true
			case "0", "false", "no", "off":
				c.encrypted = false
			}
		}
	}
	if _, ok := set["scene-id"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_SCENE_ID"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				c.sceneID = uint(n)
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid ALPHASTREAM_PLAY_SCENE_ID: %w", err)
			}
		}
	}
	if _, ok := set["scene-version"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_SCENE_VERSION"); ok && v != "" {
			c.version = v
		}
	}
	if _, ok := set["base-url"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_BASE_URL"); ok && v != "" {
			c.baseURL = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["cache-capacity"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_CACHE_CAPACITY"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.cacheCapacity = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ALPHASTREAM_PLAY_CACHE_CAPACITY: %w", err)
			}
		}
	}
	if _, ok := set["prefetch-window"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_PREFETCH_WINDOW"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.prefetchWindow = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ALPHASTREAM_PLAY_PREFETCH_WINDOW: %w", err)
			}
		}
	}
	if _, ok := set["timeout-seconds"]; !ok {
		if v, ok := get("ALPHASTREAM_PLAY_TIMEOUT_SECONDS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.timeoutSeconds = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ALPHASTREAM_PLAY_TIMEOUT_SECONDS: %w", err)
			}
		}
	}
	return firstErr
}
