// Package scheduler implements the backpressured prefetch scheduler: a
// priority-ordered queue of decode tasks with O(1) de-duplication, an
// active-task bound, and window-aware prefetch. All of its state sits
// behind a single mutex rather than per-field locks.
package scheduler

import (
	"sync"

	"github.com/daniel5gh/alphastream-go/internal/cache"
)

// Priority levels the decoder assigns (RequestFrame and Prefetch);
// anything in between is legal but these are the two the decoder uses.
const (
	PriorityPrefetch  uint8 = 0
	PriorityRequested uint8 = 10
)

// Task is a single unit of decode work, transferred by value and
// consumed by exactly one worker.
type Task struct {
	FrameIndex int64
	Priority   uint8
}

// Scheduler holds a priority-ordered deque of Tasks plus the counters
// that throttle in-flight decode work. It is single-threaded mutable
// state guarded by its own mutex; every method, including
// NextTask/ScheduleTask/CompleteTask, takes that mutex itself, so each
// is independently safe to call.
type Scheduler struct {
	mu sync.Mutex

	queue  []Task
	queued map[int64]struct{}

	activeTasks   int
	maxConcurrent int
	prefetchCount int

	cache *cache.RingBufferCache // optional; nil falls back to plain range prefetch
}

// New builds a scheduler with the given concurrency bound and prefetch
// window size. cache may be nil, in which case Prefetch falls back to
// scheduling a plain range ahead of the current frame.
func New(maxConcurrent, prefetchCount int, c *cache.RingBufferCache) *Scheduler {
	return &Scheduler{
		queued:        make(map[int64]struct{}),
		maxConcurrent: maxConcurrent,
		prefetchCount: prefetchCount,
		cache:         c,
	}
}

// Lock/Unlock expose the scheduler's mutex. It is the same non-reentrant
// mutex every Scheduler method takes, so a caller holding it must not
// call any Scheduler method before Unlock.
func (s *Scheduler) Lock()   { s.mu.Lock() }
func (s *Scheduler) Unlock() { s.mu.Unlock() }

// ActiveTasks reports the number of tasks currently dispatched to a
// worker but not yet completed.
func (s *Scheduler) ActiveTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTasks
}

// QueueDepth reports the number of tasks waiting to be dispatched.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ScheduleTask inserts t into the queue, honoring priority order and
// de-duplication: if frame_index is already queued, the entry is
// upgraded (and repositioned) only if t's priority strictly exceeds the
// queued one; otherwise the call is a no-op.
func (s *Scheduler) ScheduleTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleTaskLocked(t)
}

func (s *Scheduler) scheduleTaskLocked(t Task) {
	if idx, ok := s.findLocked(t.FrameIndex); ok {
		if t.Priority <= s.queue[idx].Priority {
			return
		}
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		delete(s.queued, t.FrameIndex)
	}
	s.insertLocked(t)
}

// insertLocked places t at the first position whose priority is
// strictly less than t's, or whose priority ties and whose frame_index
// is greater than t's — i.e. highest priority first, lowest frame_index
// first within a priority band.
func (s *Scheduler) insertLocked(t Task) {
	pos := len(s.queue)
	for i, e := range s.queue {
		if e.Priority < t.Priority || (e.Priority == t.Priority && e.FrameIndex > t.FrameIndex) {
			pos = i
			break
		}
	}
	s.queue = append(s.queue, Task{})
	copy(s.queue[pos+1:], s.queue[pos:])
	s.queue[pos] = t
	s.queued[t.FrameIndex] = struct{}{}
}

func (s *Scheduler) findLocked(frameIndex int64) (int, bool) {
	if _, ok := s.queued[frameIndex]; !ok {
		return 0, false
	}
	for i, e := range s.queue {
		if e.FrameIndex == frameIndex {
			return i, true
		}
	}
	return 0, false
}

// NextTask dequeues the highest-priority task, refusing if active_tasks
// is at max_concurrent or (with a cache attached) the cache is already
// at capacity. Dequeued tasks whose frame_index has left the cache's
// current window are dropped silently and the search continues; a
// returned task has already been marked in-progress in the cache.
func (s *Scheduler) NextTask() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.activeTasks >= s.maxConcurrent {
			return Task{}, false
		}
		if s.cache != nil && s.cache.OccupiedCount() >= s.cache.Capacity() {
			return Task{}, false
		}
		if len(s.queue) == 0 {
			return Task{}, false
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, t.FrameIndex)
		if s.cache != nil && !s.cache.IsInRange(t.FrameIndex) {
			continue
		}
		if s.cache != nil {
			s.cache.MarkInProgress(t.FrameIndex)
		}
		s.activeTasks++
		return t, true
	}
}

// CompleteTask releases one slot of in-flight concurrency. It is a
// no-op if active_tasks is already zero.
func (s *Scheduler) CompleteTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTasks > 0 {
		s.activeTasks--
	}
}

// Prefetch schedules up to prefetch_count frames ahead of currentFrame,
// clipped at the cache window end (start_index + capacity), skipping
// indices already queued or whose cache slot is not Empty. With no
// cache configured it falls back to scheduling a plain range of
// currentFrame+1..currentFrame+prefetch_count.
// It returns the number of tasks actually scheduled, for instrumentation.
func (s *Scheduler) Prefetch(currentFrame int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowEnd := currentFrame + int64(s.prefetchCount) + 1
	if s.cache != nil {
		windowEnd = s.cache.StartIndex() + int64(s.cache.Len())
	}

	scheduled := 0
	for j := 1; j <= s.prefetchCount; j++ {
		candidate := currentFrame + int64(j)
		if candidate >= windowEnd {
			break
		}
		if _, ok := s.queued[candidate]; ok {
			continue
		}
		if s.cache != nil && s.cache.StateAt(candidate) != cache.Empty {
			continue
		}
		s.insertLocked(Task{FrameIndex: candidate, Priority: PriorityPrefetch})
		scheduled++
	}
	return scheduled
}
