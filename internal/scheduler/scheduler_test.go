package scheduler

import (
	"testing"

	"github.com/daniel5gh/alphastream-go/internal/cache"
)

func TestScheduler_PriorityOrder(t *testing.T) {
	s := New(4, 16, nil)
	s.ScheduleTask(Task{FrameIndex: 5, Priority: PriorityPrefetch})
	s.ScheduleTask(Task{FrameIndex: 2, Priority: PriorityPrefetch})
	s.ScheduleTask(Task{FrameIndex: 9, Priority: PriorityRequested})

	t1, ok := s.NextTask()
	if !ok || t1.FrameIndex != 9 {
		t.Fatalf("expected highest priority task first, got %+v ok=%v", t1, ok)
	}
	t2, ok := s.NextTask()
	if !ok || t2.FrameIndex != 2 {
		t.Fatalf("expected lowest frame_index within priority band, got %+v ok=%v", t2, ok)
	}
}

func TestScheduler_DedupUpgrade(t *testing.T) {
	s := New(4, 16, nil)
	s.ScheduleTask(Task{FrameIndex: 3, Priority: PriorityPrefetch})
	s.ScheduleTask(Task{FrameIndex: 3, Priority: PriorityRequested})
	if depth := s.QueueDepth(); depth != 1 {
		t.Fatalf("expected single deduped entry, got depth %d", depth)
	}
	task, ok := s.NextTask()
	if !ok || task.Priority != PriorityRequested {
		t.Fatalf("expected upgraded priority to win, got %+v", task)
	}
}

func TestScheduler_DedupNoDowngrade(t *testing.T) {
	s := New(4, 16, nil)
	s.ScheduleTask(Task{FrameIndex: 3, Priority: PriorityRequested})
	s.ScheduleTask(Task{FrameIndex: 3, Priority: PriorityPrefetch})
	task, ok := s.NextTask()
	if !ok || task.Priority != PriorityRequested {
		t.Fatalf("expected priority to stay upgraded, got %+v", task)
	}
}

func TestScheduler_MaxConcurrentBackpressure(t *testing.T) {
	s := New(1, 16, nil)
	s.ScheduleTask(Task{FrameIndex: 0, Priority: PriorityRequested})
	s.ScheduleTask(Task{FrameIndex: 1, Priority: PriorityRequested})

	if _, ok := s.NextTask(); !ok {
		t.Fatalf("expected first task to dequeue")
	}
	if _, ok := s.NextTask(); ok {
		t.Fatalf("expected backpressure with active task at max_concurrent")
	}
	s.CompleteTask()
	if _, ok := s.NextTask(); !ok {
		t.Fatalf("expected next task after completion freed a slot")
	}
}

func TestScheduler_DropsTaskOutsideCacheWindow(t *testing.T) {
	c := cache.New(4)
	c.UpdatePlayHead(0)
	s := New(4, 16, c)
	s.ScheduleTask(Task{FrameIndex: 0, Priority: PriorityRequested})
	c.UpdatePlayHead(20) // large forward seek invalidates frame 0's window membership

	if _, ok := s.NextTask(); ok {
		t.Fatalf("expected stale task outside the new window to be dropped silently")
	}
}

func TestScheduler_CacheBackpressureAtCapacity(t *testing.T) {
	c := cache.New(2)
	c.UpdatePlayHead(0)
	c.MarkInProgress(0)
	c.MarkInProgress(1)
	s := New(4, 16, c)
	s.ScheduleTask(Task{FrameIndex: 0, Priority: PriorityRequested})

	if _, ok := s.NextTask(); ok {
		t.Fatalf("expected backpressure once cache occupancy reached capacity")
	}
}

func TestScheduler_PrefetchClipsAtWindowEnd(t *testing.T) {
	c := cache.New(4)
	c.UpdatePlayHead(0)
	s := New(4, 16, c)
	n := s.Prefetch(0)
	if n != 3 {
		t.Fatalf("expected prefetch clipped to remaining window (3 slots), got %d", n)
	}
}

func TestScheduler_PrefetchSkipsNonEmptySlots(t *testing.T) {
	c := cache.New(8)
	c.UpdatePlayHead(0)
	c.MarkInProgress(1)
	s := New(4, 16, c)
	n := s.Prefetch(0)
	if n != 6 {
		t.Fatalf("expected prefetch to skip the already in-progress slot, got %d scheduled", n)
	}
}
