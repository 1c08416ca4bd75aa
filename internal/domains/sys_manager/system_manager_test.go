package sys_manager

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/scratch"
)

type countingTask struct {
	runs atomic.Int32
}

func (c *countingTask) Execute(ctx context.Context) error {
	c.runs.Add(1)
	return nil
}

func (c *countingTask) GetName() string            { return "countingTask" }
func (c *countingTask) GetInterval() time.Duration { return time.Hour }

func TestSystemManagerRunsTasksOnStart(t *testing.T) {
	sm := NewSystemManager(Logger.NewNop())
	task := &countingTask{}
	sm.RegisterTask(task)
	if sm.GetTaskCount() != 1 {
		t.Fatalf("expected 1 task, got %d", sm.GetTaskCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sm.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for task.runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("task never executed")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
	if sm.IsRunning() {
		t.Error("manager still running after cancel")
	}
}

func TestSystemManagerRejectsDoubleStart(t *testing.T) {
	sm := NewSystemManager(Logger.NewNop())
	ctx := context.Background()
	if err := sm.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sm.Stop()
	if err := sm.Start(ctx); err == nil {
		t.Error("expected error on second start")
	}
}

type failingTask struct {
	runs atomic.Int32
}

func (f *failingTask) Execute(ctx context.Context) error {
	f.runs.Add(1)
	return errors.New("boom")
}

func (f *failingTask) GetName() string            { return "failingTask" }
func (f *failingTask) GetInterval() time.Duration { return 5 * time.Millisecond }

func TestSystemManagerKeepsRunningAfterTaskFailure(t *testing.T) {
	sm := NewSystemManager(Logger.NewNop())
	task := &failingTask{}
	sm.RegisterTask(task)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sm.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for task.runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated runs, got %d", task.runs.Load())
		}
		time.Sleep(time.Millisecond)
	}
	if err := sm.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
}

func TestScratchSweepTaskRemovesOnlyStaleFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	area, err := scratch.New(fs, "temp_audio")
	if err != nil {
		t.Fatalf("scratch: %v", err)
	}
	stale, err := area.Create("audio", "wav", []byte("old"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := fs.Chtimes(stale.Path(), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh, err := area.Create("tts", "mp3", []byte("new"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	task := NewScratchSweepTask(area, 10*time.Minute, 0, nil, Logger.NewNop())
	if task.GetInterval() != 5*time.Minute {
		t.Errorf("unexpected default interval %s", task.GetInterval())
	}
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if ok, _ := afero.Exists(fs, stale.Path()); ok {
		t.Error("stale artifact should be removed")
	}
	if ok, _ := afero.Exists(fs, filepath.Join(area.Dir(), fresh.Name())); !ok {
		t.Error("fresh artifact should be kept")
	}
}
