// Package decoder is the worker-loop glue that binds the byte source,
// container deserializer, cache, scheduler, and rasterizer into the
// public playback API. Its option-builder construction and Close/Shutdown
// lifecycle give every configuration knob a default and a Close that is
// safe to call more than once.
package decoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daniel5gh/alphastream-go/internal/bytesource"
	"github.com/daniel5gh/alphastream-go/internal/cache"
	"github.com/daniel5gh/alphastream-go/internal/container"
	"github.com/daniel5gh/alphastream-go/internal/logging"
	"github.com/daniel5gh/alphastream-go/internal/metrics"
	"github.com/daniel5gh/alphastream-go/internal/rasterizer"
	"github.com/daniel5gh/alphastream-go/internal/scheduler"
	"github.com/daniel5gh/alphastream-go/internal/statuslog"
)

const idleSleep = time.Millisecond

// options holds the builder-configurable knobs, with documented ranges
// enforced in validate().
type options struct {
	runtimeThreads int
	cacheCapacity  int
	prefetchWindow int
	mode           rasterizer.Mode
	timeout        time.Duration
	logger         *slog.Logger
	events         *statuslog.Sink
}

func defaultOptions() options {
	return options{
		runtimeThreads: 0,
		cacheCapacity:  512,
		prefetchWindow: 16,
		mode:           rasterizer.Bitmap,
		timeout:        30 * time.Second,
		logger:         logging.L(),
	}
}

func (o *options) validate() error {
	if o.runtimeThreads < 0 || o.runtimeThreads > 64 {
		return fmt.Errorf("decoder: runtime_threads %d out of range [0,64]", o.runtimeThreads)
	}
	if o.cacheCapacity < 1 || o.cacheCapacity > 4096 {
		return fmt.Errorf("decoder: cache_capacity %d out of range [1,4096]", o.cacheCapacity)
	}
	if o.prefetchWindow < 1 || o.prefetchWindow > 500 {
		return fmt.Errorf("decoder: prefetch_window %d out of range [1,500]", o.prefetchWindow)
	}
	if o.timeout < time.Second || o.timeout > 300*time.Second {
		return fmt.Errorf("decoder: timeout_seconds %v out of range [1s,300s]", o.timeout)
	}
	return nil
}

// Option configures a Decoder at construction time.
type Option func(*options)

func WithRuntimeThreads(n int) Option { return func(o *options) { o.runtimeThreads = n } }
func WithCacheCapacity(n int) Option  { return func(o *options) { o.cacheCapacity = n } }
func WithPrefetchWindow(n int) Option { return func(o *options) { o.prefetchWindow = n } }
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventSink attaches a non-blocking event sink that receives
// frame-decoded, seek-detected, and decode-failure notifications as the
// worker loop runs. A nil sink (the default) disables event emission.
func WithEventSink(s *statuslog.Sink) Option {
	return func(o *options) { o.events = s }
}

// Decoder serves rasterized frames from a container, prefetching ahead
// of the play head on a bounded pool of background decode jobs.
type Decoder struct {
	deser  *container.Deserializer
	meta   container.Metadata
	cache  *cache.RingBufferCache
	sched  *scheduler.Scheduler
	width  int
	height int
	mode   rasterizer.Mode
	logger *slog.Logger
	source io.Closer
	events *statuslog.Sink

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	jobs     errgroup.Group
	closeOne sync.Once
}

// OpenPlaintext opens uri as the unencrypted container variant.
func OpenPlaintext(uri string, width, height int, mode rasterizer.Mode, opts ...Option) (*Decoder, error) {
	o := defaultOptions()
	o.mode = mode
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	src, err := bytesource.OpenFile(uri, true)
	if err != nil {
		return nil, fmt.Errorf("decoder: open %s: %w", uri, err)
	}

	start := time.Now()
	deser, meta, err := container.OpenPlaintext(src)
	if err != nil {
		_ = src.Close()
		metrics.IncError(metrics.ErrContainerOpen)
		return nil, fmt.Errorf("decoder: open container: %w", err)
	}
	metrics.ObserveContainerOpenSeconds(time.Since(start).Seconds())

	return newDecoder(deser, meta, src, width, height, o), nil
}

// OpenEncrypted opens uri as the encrypted container variant, deriving
// the container key from sceneID/version/baseURLOverride (empty override
// falls back to uri's basename, per container.OpenEncrypted).
func OpenEncrypted(uri string, sceneID uint32, version, baseURLOverride string, width, height int, mode rasterizer.Mode, opts ...Option) (*Decoder, error) {
	o := defaultOptions()
	o.mode = mode
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	src, err := bytesource.OpenFile(uri, true)
	if err != nil {
		return nil, fmt.Errorf("decoder: open %s: %w", uri, err)
	}

	start := time.Now()
	deser, meta, err := container.OpenEncrypted(src, sceneID, version, uri, baseURLOverride)
	if err != nil {
		_ = src.Close()
		metrics.IncError(metrics.ErrContainerOpen)
		return nil, fmt.Errorf("decoder: open container: %w", err)
	}
	metrics.ObserveContainerOpenSeconds(time.Since(start).Seconds())

	return newDecoder(deser, meta, src, width, height, o), nil
}

func newDecoder(deser *container.Deserializer, meta container.Metadata, src io.Closer, width, height int, o options) *Decoder {
	maxConcurrent := o.runtimeThreads
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	c := cache.New(o.cacheCapacity)
	sched := scheduler.New(maxConcurrent, o.prefetchWindow, c)
	ctx, cancel := context.WithCancel(context.Background())

	d := &Decoder{
		deser:    deser,
		meta:     meta,
		cache:    c,
		sched:    sched,
		width:    width,
		height:   height,
		mode:     o.mode,
		logger:   o.logger,
		source:   src,
		events:   o.events,
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go func() {
		defer close(d.loopDone)
		d.workerLoop()
	}()
	return d
}

// Metadata returns the container's immutable summary.
func (d *Decoder) Metadata() container.Metadata { return d.meta }

// GetFrame returns the mask for frame i at w×h (resized from the
// decoder's configured dimensions if they differ), or false if no Ready
// slot exists yet. It never blocks waiting for a decode to finish.
func (d *Decoder) GetFrame(i int64, w, h int) ([]byte, bool) {
	fd, ok := d.cache.Get(i)
	if !ok {
		metrics.IncCacheMiss()
		return nil, false
	}
	metrics.IncCacheHit()
	if fd.Bitmap == nil {
		return nil, false
	}
	if w == d.width && h == d.height {
		return fd.Bitmap, true
	}
	return rasterizer.Resize(fd.Bitmap, d.width, d.height, w, h), true
}

// GetTriangleStripVertices returns the fan-triangulated vertex list for
// frame i, or false if no Ready slot with a strip output exists yet.
func (d *Decoder) GetTriangleStripVertices(i int64) ([]float32, bool) {
	fd, ok := d.cache.Get(i)
	if !ok || fd.TriangleStrip == nil {
		return nil, false
	}
	return fd.TriangleStrip, true
}

// RequestFrame updates the play head to i, which may slide or invalidate
// the cache window, schedules a high-priority decode task on a miss, and
// triggers prefetch ahead of i. Out-of-range indices are logged and
// ignored (an out-of-range request is a no-op, not a failure).
func (d *Decoder) RequestFrame(i int64) error {
	if i < 0 || i >= int64(d.meta.FrameCount) {
		d.logger.Warn("request_frame_out_of_range", "frame", i, "frame_count", d.meta.FrameCount)
		return nil
	}
	if seek := d.cache.UpdatePlayHead(i); seek == cache.Seek {
		metrics.IncSeekDetected()
		if d.events != nil {
			d.events.Emit(statuslog.Event{Kind: statuslog.SeekDetected, Frame: i})
		}
	}
	if _, ready := d.cache.Get(i); !ready {
		d.sched.ScheduleTask(scheduler.Task{FrameIndex: i, Priority: scheduler.PriorityRequested})
	}
	if n := d.sched.Prefetch(i); n > 0 {
		for j := 0; j < n; j++ {
			metrics.IncPrefetchScheduled()
		}
	}
	return nil
}

// Close aborts the worker loop, waits for any in-flight decode jobs, and
// releases the underlying byte source. Idempotent.
func (d *Decoder) Close() error {
	var err error
	d.closeOne.Do(func() {
		d.cancel()
		<-d.loopDone
		_ = d.jobs.Wait()
		if d.source != nil {
			err = d.source.Close()
		}
		d.logger.Info("decoder_closed")
	})
	return err
}

// workerLoop drains the scheduler, spawns a
// decode+rasterize job per dequeued task, commit only if the cache
// generation hasn't advanced, idle-sleep when nothing was dispatched.
func (d *Decoder) workerLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		dispatched := 0
		for {
			t, ok := d.sched.NextTask()
			if !ok {
				break
			}
			dispatched++
			g := d.cache.Generation()
			task := t
			d.jobs.Go(func() error {
				d.runJob(task, g)
				return nil
			})
		}
		d.updateGauges()
		if dispatched == 0 {
			time.Sleep(idleSleep)
		}
	}
}

func (d *Decoder) runJob(t scheduler.Task, generation uint64) {
	defer d.sched.CompleteTask()

	payload, err := d.deser.DecodeFrame(int(t.FrameIndex))
	if err != nil {
		metrics.IncFramesDecodeErrors()
		metrics.IncError(metrics.ErrFrameDecode)
		d.logger.Warn("decode_frame_failed", "frame", t.FrameIndex, "error", err)
		d.cache.MarkFailed(t.FrameIndex)
		if d.events != nil {
			d.events.Emit(statuslog.Event{Kind: statuslog.DecodeFailed, Frame: t.FrameIndex, Err: err})
		}
		return
	}
	frame, err := rasterizer.DecodeFrame(payload, d.width, d.height, d.mode)
	if err != nil {
		metrics.IncFramesDecodeErrors()
		metrics.IncError(metrics.ErrFrameDecode)
		d.logger.Warn("rasterize_frame_failed", "frame", t.FrameIndex, "error", err)
		d.cache.MarkFailed(t.FrameIndex)
		if d.events != nil {
			d.events.Emit(statuslog.Event{Kind: statuslog.DecodeFailed, Frame: t.FrameIndex, Err: err})
		}
		return
	}
	if d.cache.Generation() == generation {
		d.cache.Insert(t.FrameIndex, cache.FromRasterized(payload, frame))
	}
	metrics.IncFramesDecoded()
	if d.events != nil {
		d.events.Emit(statuslog.Event{Kind: statuslog.FrameDecoded, Frame: t.FrameIndex})
	}
}

func (d *Decoder) updateGauges() {
	metrics.SetCacheGauges(d.cache.ReadyCount(), d.cache.InProgressCount(), d.cache.Generation())
	metrics.SetSchedulerGauges(d.sched.ActiveTasks(), d.sched.QueueDepth())
}
