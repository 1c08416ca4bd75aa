package sys_manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/scratch"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

// DefaultTaskTimeout bounds a single task execution.
const DefaultTaskTimeout = 30 * time.Second

// SystemTask is a periodic background job
type SystemTask interface {
	Execute(ctx context.Context) error
	// GetName returns the task name for logging
	GetName() string
	// GetInterval returns how often this task should run
	GetInterval() time.Duration
}

// SystemManager runs every registered task on its own ticker. Each task also
// runs once immediately on start.
type SystemManager struct {
	logger      *Logger.Logger
	taskTimeout time.Duration

	mu      sync.RWMutex
	tasks   []SystemTask
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewSystemManager(logger *Logger.Logger) *SystemManager {
	return &SystemManager{
		logger:      logger,
		taskTimeout: DefaultTaskTimeout,
	}
}

// RegisterTask adds a task. Tasks registered after Start wait for the next Start.
func (sm *SystemManager) RegisterTask(task SystemTask) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.tasks = append(sm.tasks, task)
	sm.logger.Infof("Registered system task: %s (interval: %s)", task.GetName(), task.GetInterval())
}

// Start launches the task loops; they stop when ctx ends or Stop is called.
func (sm *SystemManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		return fmt.Errorf("system manager is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	sm.cancel = cancel
	sm.running = true
	sm.logger.Infof("Starting system manager with %d tasks", len(sm.tasks))

	for _, task := range sm.tasks {
		sm.wg.Add(1)
		go sm.runTask(runCtx, task)
	}
	return nil
}

// Stop cancels every task loop and waits for in-flight executions.
func (sm *SystemManager) Stop() error {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return nil
	}
	sm.cancel()
	sm.running = false
	sm.mu.Unlock()

	sm.wg.Wait()
	sm.logger.Infof("System manager stopped")
	return nil
}

// Run starts the manager and blocks until ctx is done, then stops every task.
func (sm *SystemManager) Run(ctx context.Context) error {
	if err := sm.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sm.Stop()
}

func (sm *SystemManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

func (sm *SystemManager) GetTaskCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.tasks)
}

func (sm *SystemManager) runTask(ctx context.Context, task SystemTask) {
	defer sm.wg.Done()

	ticker := time.NewTicker(task.GetInterval())
	defer ticker.Stop()

	sm.executeTask(ctx, task)
	for {
		select {
		case <-ctx.Done():
			sm.logger.Debugf("Task loop stopping for: %s", task.GetName())
			return
		case <-ticker.C:
			sm.executeTask(ctx, task)
		}
	}
}

// executeTask runs one execution under the task timeout. Failures are logged;
// the loop keeps going.
func (sm *SystemManager) executeTask(ctx context.Context, task SystemTask) {
	name := task.GetName()
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, sm.taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		sm.logger.Errorf("System task %s failed after %s: %v", name, time.Since(start), err)
		return
	}
	sm.logger.Debugf("System task %s completed in %s", name, time.Since(start))
}

// ScratchSweepTask removes scratch artifacts nobody released, e.g. after a crash
// mid-cycle.
type ScratchSweepTask struct {
	area     *scratch.Area
	staleAge time.Duration
	interval time.Duration
	metrics  *observe.Metrics
	logger   *Logger.Logger
}

func NewScratchSweepTask(
	area *scratch.Area,
	staleAge time.Duration,
	interval time.Duration,
	metrics *observe.Metrics,
	logger *Logger.Logger,
) *ScratchSweepTask {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAge <= 0 {
		staleAge = 10 * time.Minute
	}
	if metrics == nil {
		metrics = observe.Discard()
	}

	return &ScratchSweepTask{
		area:     area,
		staleAge: staleAge,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Execute removes artifacts older than the stale age.
func (t *ScratchSweepTask) Execute(ctx context.Context) error {
	removed, err := t.area.Sweep(t.staleAge)
	if removed > 0 {
		t.metrics.ScratchFilesRemoved.Add(ctx, int64(removed))
		t.logger.Infof("Removed %d stale scratch files from %s", removed, t.area.Dir())
	}
	if err != nil {
		return fmt.Errorf("sweep %s: %w", t.area.Dir(), err)
	}
	return nil
}

// GetName implements SystemTask.GetName
func (t *ScratchSweepTask) GetName() string {
	return "ScratchSweepTask"
}

// GetInterval implements SystemTask.GetInterval
func (t *ScratchSweepTask) GetInterval() time.Duration {
	return t.interval
}
