// Command alphastream-play is a demo CLI that opens a container and
// plays frames sequentially, piping raw 8-bit grayscale masks to stdout
// (or a file) for an external video encoder to consume — the
// collaborator-level piping this core library does not perform itself.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daniel5gh/alphastream-go/internal/decoder"
	"github.com/daniel5gh/alphastream-go/internal/metrics"
	"github.com/daniel5gh/alphastream-go/internal/rasterizer"
	"github.com/daniel5gh/alphastream-go/internal/statuslog"
)

const eventSinkBuffer = 256

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const pollInterval = 2 * time.Millisecond
const pollTimeout = 5 * time.Second

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("alphastream-play %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()

	events := statuslog.NewSink(ctx, eventSinkBuffer, l)
	defer events.Close()

	mode := parseMode(cfg.mode)
	opts := []decoder.Option{
		decoder.WithRuntimeThreads(cfg.runtimeThreads),
		decoder.WithCacheCapacity(cfg.cacheCapacity),
		decoder.WithPrefetchWindow(cfg.prefetchWindow),
		decoder.WithTimeout(time.Duration(cfg.timeoutSeconds) * time.Second),
		decoder.WithLogger(l),
		decoder.WithEventSink(events),
	}

	var dec *decoder.Decoder
	var err error
	if cfg.encrypted {
		dec, err = decoder.OpenEncrypted(cfg.uri, uint32(cfg.sceneID), cfg.version, cfg.baseURL, cfg.width, cfg.height, mode, opts...)
	} else {
		dec, err = decoder.OpenPlaintext(cfg.uri, cfg.width, cfg.height, mode, opts...)
	}
	if err != nil {
		l.Error("open_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = dec.Close() }()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

	meta := dec.Metadata()
	l.Info("opened", "frame_count", meta.FrameCount, "width", cfg.width, "height", cfg.height, "mode", cfg.mode)

	var out io.Writer = os.Stdout
	if cfg.outPath != "" {
		f, ferr := os.Create(cfg.outPath)
		if ferr != nil {
			l.Error("out_open_failed", "error", ferr)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	w := bufio.NewWriter(out)
	defer func() { _ = w.Flush() }()

	end := meta.FrameCount
	if cfg.frameCount >= 0 && cfg.startFrame+cfg.frameCount < end {
		end = cfg.startFrame + cfg.frameCount
	}

	for i := cfg.startFrame; i < end; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := dec.RequestFrame(int64(i)); err != nil {
			l.Warn("request_frame_failed", "frame", i, "error", err)
			continue
		}
		if !playOne(ctx, dec, w, int64(i), cfg.width, cfg.height, mode) {
			l.Warn("frame_timeout", "frame", i)
		}
	}
	l.Info("playback_done", "frames_played", end-cfg.startFrame, "events_dropped", events.Dropped())
}

// playOne polls get_frame/get_triangle_strip_vertices for frame i until
// Ready or pollTimeout elapses, writing bitmap bytes to w. It never
// blocks inside the decoder itself — polling happens at this layer,
// get_frame itself never blocks on a pending decode.
func playOne(ctx context.Context, dec *decoder.Decoder, w io.Writer, i int64, width, height int, mode rasterizer.Mode) bool {
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		if mode == rasterizer.Bitmap || mode == rasterizer.Both {
			if mask, ok := dec.GetFrame(i, width, height); ok {
				_, _ = w.Write(mask)
				return true
			}
		} else {
			if verts, ok := dec.GetTriangleStripVertices(i); ok {
				_ = verts
				return true
			}
		}
		time.Sleep(pollInterval)
	}
	return false
}

func parseMode(s string) rasterizer.Mode {
	switch s {
	case "strip":
		return rasterizer.TriangleStrip
	case "both":
		return rasterizer.Both
	default:
		return rasterizer.Bitmap
	}
}
