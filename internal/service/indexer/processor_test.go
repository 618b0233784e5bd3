package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/model/system"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndexer 记录调用并检测同一目录的并发索引
type fakeIndexer struct {
	mu         sync.Mutex
	running    map[string]bool
	overlapped atomic.Bool
	calls      atomic.Int32
	panicOn    string
	delay      time.Duration
}

func (f *fakeIndexer) IndexExecution(ctx context.Context, indexation *execmodel.PlannedIndexation) (*execmodel.Execution, error) {
	f.calls.Add(1)
	if indexation.RawFolder == f.panicOn {
		panic("corrupted folder")
	}
	f.mu.Lock()
	if f.running[indexation.RawFolder] {
		f.overlapped.Store(true)
	}
	f.running[indexation.RawFolder] = true
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	delete(f.running, indexation.RawFolder)
	f.mu.Unlock()
	return nil, errors.New("ignored")
}

// brokenQueue 模拟不可达的队列后端
type brokenQueue struct {
	pops atomic.Int32
}

func (q *brokenQueue) Push(ctx context.Context, indexation *execmodel.PlannedIndexation) error {
	return errors.New("connection refused")
}

func (q *brokenQueue) Pop(ctx context.Context) (*execmodel.PlannedIndexation, error) {
	q.pops.Add(1)
	return nil, errors.New("connection refused")
}

func (q *brokenQueue) Len(ctx context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestProcessor_BacksOffWhenQueueFails(t *testing.T) {
	queue := &brokenQueue{}
	p := NewProcessor(queue, &fakeIndexer{running: map[string]bool{}}, 2)
	p.popRetryMin = 10 * time.Millisecond
	p.popRetryMax = 40 * time.Millisecond

	p.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	p.Stop()

	// 每个 Worker: 10+20+40+40+... 毫秒，200 毫秒内最多 7 次出队
	pops := queue.pops.Load()
	assert.GreaterOrEqual(t, pops, int32(2))
	assert.LessOrEqual(t, pops, int32(2*8))
}

func TestProcessor_StopInterruptsBackoff(t *testing.T) {
	queue := &brokenQueue{}
	p := NewProcessor(queue, &fakeIndexer{running: map[string]bool{}}, 1)
	p.popRetryMin = time.Hour
	p.popRetryMax = time.Hour

	p.Start(context.Background())
	require.Eventually(t, func() bool { return queue.pops.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop while waiting to retry")
	}
	assert.Equal(t, int32(1), queue.pops.Load())
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	require.NoError(t, q.Push(ctx, &execmodel.PlannedIndexation{RawFolder: "a"}))
	require.NoError(t, q.Push(ctx, &execmodel.PlannedIndexation{RawFolder: "b"}))
	assert.ErrorIs(t, q.Push(ctx, &execmodel.PlannedIndexation{RawFolder: "c"}), system.ErrQueueFull)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.RawFolder)

	_, _ = q.Pop(ctx)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Pop(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_SerializesSameFolder(t *testing.T) {
	dir := t.TempDir()
	indexer := &fakeIndexer{running: map[string]bool{}, delay: 20 * time.Millisecond}
	p := NewProcessor(NewMemoryQueue(10), indexer, 4)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Process(context.Background(), &execmodel.PlannedIndexation{RawFolder: dir})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), indexer.calls.Load())
	assert.False(t, indexer.overlapped.Load(), "same folder indexed concurrently")
	assert.Empty(t, p.locks.locks, "locks are released once unused")
}

func TestProcessor_WorkersSurvivePanics(t *testing.T) {
	base := t.TempDir()
	broken := filepath.Join(base, "broken")
	healthy := filepath.Join(base, "healthy")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.MkdirAll(healthy, 0o755))

	indexer := &fakeIndexer{running: map[string]bool{}, panicOn: broken}
	queue := NewMemoryQueue(10)
	p := NewProcessor(queue, indexer, 1)
	p.Start(context.Background())
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), &execmodel.PlannedIndexation{RawFolder: broken}))
	require.NoError(t, p.Submit(context.Background(), &execmodel.PlannedIndexation{RawFolder: healthy}))

	assert.Eventually(t, func() bool { return indexer.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestCanonicalLink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "job", "50"), 0o755))
	link, err := CanonicalLink(filepath.Join(dir, "job", ".", "50"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "job", "50")+string(filepath.Separator), link)

	// 超出 job_link 列宽的路径在入库前被拒绝
	deep := filepath.Join(dir, strings.Repeat("workspace", execmodel.JobLinkMaxLength/9+1))
	_, err = CanonicalLink(deep)
	assert.ErrorIs(t, err, system.ErrInvalidIndexation)
}

func TestPlanner_Plan(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	folder := env.writeJob(t, "50", jobSpec{})

	planned, err := env.planner.Plan(ctx, "the-demo-project", "main", "nightly", "50")
	require.NoError(t, err)
	assert.Equal(t, folder, planned.RawFolder)
	assert.Equal(t, env.cycle.ID, planned.CycleDefinition.ID)

	_, err = env.planner.Plan(ctx, "the-demo-project", "main", "nightly", "51")
	assert.ErrorIs(t, err, system.ErrInvalidIndexation)

	_, err = env.planner.Plan(ctx, "the-demo-project", "main", "nightly", t.TempDir())
	assert.ErrorIs(t, err, system.ErrRawFolderOutsideBase)

	_, err = env.planner.Plan(ctx, "the-demo-project", "main", "nightly", " ")
	var validation *system.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestPlanner_PlanPendingAndPoll(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	done := env.writeJob(t, "52", jobSpec{})
	_, err := env.indexer.IndexExecution(ctx, env.planned(done))
	require.NoError(t, err)
	pending := env.writeJob(t, "53", jobSpec{building: true})

	planned, err := env.planner.PlanPending(ctx)
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.Equal(t, pending, planned[0].RawFolder)

	queue := NewMemoryQueue(10)
	scheduler := NewPollScheduler(env.planner, queue, time.Hour)
	assert.Equal(t, 1, scheduler.Poll(ctx))
	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteRawFolder_OutsideBase(t *testing.T) {
	env := newIndexerEnv(t)
	outside := t.TempDir()

	err := env.indexer.deleteRawFolder(outside)
	assert.ErrorIs(t, err, system.ErrRawFolderOutsideBase)
	_, statErr := os.Stat(outside)
	assert.NoError(t, statErr)

	assert.ErrorIs(t, env.indexer.deleteRawFolder(env.base), system.ErrRawFolderOutsideBase)
}
