package task_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyang/call-dispatch/internal/adapter/memory"
	"github.com/alanyang/call-dispatch/internal/adapter/spreadsheet"
	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	"github.com/alanyang/call-dispatch/internal/domain/intake"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	"github.com/alanyang/call-dispatch/internal/metrics"
	"github.com/alanyang/call-dispatch/internal/mocks"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
	"github.com/alanyang/call-dispatch/internal/service/distributor"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"
	"github.com/alanyang/call-dispatch/internal/testutil"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type fixture struct {
	agents *memory.AgentRepository
	tasks  *memory.TaskRepository
	cache  *memory.Cache
	bus    *testutil.CaptureBus
	svc    *tasksvc.Service
	tenant uuid.UUID
}

func newFixture(t *testing.T, limits distribution.Limits) *fixture {
	t.Helper()
	return newFixtureWithLocker(t, limits, memory.NewLocker())
}

func newFixtureWithLocker(t *testing.T, limits distribution.Limits, locker portlocker.AdvisoryLocker) *fixture {
	t.Helper()
	f := &fixture{
		agents: memory.NewAgentRepository(),
		tasks:  memory.NewTaskRepository(),
		cache:  memory.NewCache(),
		bus:    &testutil.CaptureBus{},
		tenant: uuid.New(),
	}
	f.svc = tasksvc.NewService(tasksvc.Deps{
		Repo:        f.tasks,
		AgentRepo:   f.agents,
		Distributor: distributor.NewService(f.agents, limits),
		Locker:      locker,
		Idempotency: f.cache,
		Bus:         f.bus,
		Metrics:     metrics.NewNop(),
		ReadRows:    spreadsheet.Read,
		Limits:      intake.DefaultLimits(),
	})
	return f
}

func (f *fixture) addAgent(t *testing.T, name string, active bool) domainagent.Agent {
	t.Helper()
	return f.addTenantAgent(t, f.tenant, name, active)
}

func (f *fixture) addTenantAgent(t *testing.T, tenantID uuid.UUID, name string, active bool) domainagent.Agent {
	t.Helper()
	a := domainagent.New(tenantID, name, name+"@example.com", "+1", "5551234567")
	a.IsActive = active
	created, err := f.agents.Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func csvUpload(body string) tasksvc.UploadInput {
	return tasksvc.UploadInput{
		File: intake.File{Name: "tasks.csv", Size: int64(len(body)), ContentType: "text/csv"},
		Body: strings.NewReader(body),
	}
}

func csvRows(n int) string {
	var b strings.Builder
	b.WriteString("FirstName,Phone,Notes\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Caller,55500%05d,note %d\n", i, i)
	}
	return b.String()
}

// ── Upload ────────────────────────────────────────────────────────────────────

func TestUpload_TenOverThree(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	for _, n := range []string{"ann", "bob", "cat"} {
		f.addAgent(t, n, true)
	}

	res, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(10)))
	require.NoError(t, err)

	assert.Equal(t, 10, res.TaskCount)
	assert.Equal(t, 3, res.Distribution.Metrics.BaseTasksPerAgent)
	assert.Equal(t, 1, res.Distribution.Metrics.RemainingTasks)
	assert.InDelta(t, 2.0/9.0, res.Distribution.Metrics.WorkloadVariance, 1e-9)
	assert.Equal(t, []int{4, 3, 3}, testutil.Loads(t, f.agents, f.tenant))
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
	assert.Equal(t, []event.Type{event.TypeTasksUploaded}, f.bus.Types())
}

func TestUpload_RoundRobinAlternatesAgents(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	ann := f.addAgent(t, "ann", true)
	bob := f.addAgent(t, "bob", true)

	res, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(4)))
	require.NoError(t, err)

	tasks, err := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: f.tenant, OldestFirst: true})
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	want := []uuid.UUID{ann.ID, bob.ID, ann.ID, bob.ID}
	for i, task := range tasks {
		require.NotNil(t, task.AssignedAgentID)
		assert.Equal(t, want[i], *task.AssignedAgentID, "task %d", i)
	}
	assert.Len(t, res.Distribution.Assignments, 2)
}

func TestUpload_ExtrasGoToLeastLoaded(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	busy := f.addAgent(t, "busy", true)
	idle := f.addAgent(t, "idle", true)
	require.NoError(t, f.agents.PushTasks(context.Background(), busy.ID, []uuid.UUID{uuid.New(), uuid.New()}))

	res, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(3)))
	require.NoError(t, err)

	require.Len(t, res.Distribution.Assignments, 2)
	assert.Equal(t, idle.ID, res.Distribution.Assignments[0].AgentID)
	assert.Len(t, res.Distribution.Assignments[0].TaskIDs, 2)
}

func TestUpload_AnyInvalidRowPersistsNothing(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)

	body := "FirstName,Phone,Notes\n" +
		"Ann,5551234567,\n" +
		"John123,12345," + strings.Repeat("x", 501) + "\n" +
		"Bob,5551234567,\n"

	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(body))
	require.ErrorIs(t, err, intake.ErrValidation)

	var be *intake.BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.FailedRecords, 2)
	assert.Equal(t, 3, be.FailedRecords[0].RowNumber)
	assert.Len(t, be.FailedRecords[0].Errors, 3)
	assert.Equal(t, 4, be.FailedRecords[1].RowNumber)
	assert.Equal(t, []string{"Duplicate phone number found"}, be.FailedRecords[1].Errors)

	tasks, err := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: f.tenant})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, f.bus.Types())
}

func TestUpload_NotesLimitCountsPadding(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)

	body := "FirstName,Phone,Notes\nAnn,5551234567,\"" + strings.Repeat("n", 500) + "  \"\n"
	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(body))

	var be *intake.BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.FailedRecords, 1)
	assert.Equal(t, []string{"Notes must not exceed 500 characters"}, be.FailedRecords[0].Errors)
}

func TestUpload_PhoneOnOpenTaskIsRejected(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)

	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload("FirstName,Phone\nAnn,5551234567\n"))
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), f.tenant, csvUpload("FirstName,Phone\nBob,5559999999\nAnn,555 123 4567\n"))
	var be *intake.BatchError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.FailedRecords, 1)
	assert.Equal(t, 3, be.FailedRecords[0].RowNumber)
	assert.Equal(t, []string{"Phone number already exists"}, be.FailedRecords[0].Errors)
}

func TestUpload_ReactivatesInactivePool(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", false)
	f.addAgent(t, "bob", false)

	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(2)))
	require.NoError(t, err)

	active, err := f.agents.List(context.Background(), domainagent.ListFilters{TenantID: f.tenant, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, []int{1, 1}, testutil.Loads(t, f.agents, f.tenant))
}

func TestUpload_CapacityWarningsAndExhaustion(t *testing.T) {
	limits := distribution.Limits{MaxTasksPerAgent: 5, CapacityWarningRatio: 0.8}
	f := newFixture(t, limits)
	full := f.addAgent(t, "full", true)
	f.addAgent(t, "free", true)
	require.NoError(t, f.agents.PushTasks(context.Background(), full.ID, []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}))

	res, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(5)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Agent full has reached maximum task capacity"}, res.Warnings)

	_, err = f.svc.Upload(context.Background(), f.tenant, csvUpload("FirstName,Phone\nZed,5558888888\n"))
	require.ErrorIs(t, err, distribution.ErrAllAgentsAtCapacity)
	var ie *distribution.IneligibleError
	require.ErrorAs(t, err, &ie)
	assert.Len(t, ie.Warnings, 2)
}

func TestUpload_NoAgents(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())

	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(1)))
	assert.ErrorIs(t, err, distribution.ErrNoAgents)
}

func TestUpload_FileErrors(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())

	in := csvUpload("FirstName,Phone\n")
	in.File.Name = "tasks.pdf"
	_, err := f.svc.Upload(context.Background(), f.tenant, in)
	assert.ErrorIs(t, err, intake.ErrInvalidFile)

	_, err = f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(1001)))
	assert.ErrorIs(t, err, intake.ErrTooManyRecords)
}

func TestUpload_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)

	in := csvUpload(csvRows(2))
	in.IdempotencyKey = "upload-1"
	first, err := f.svc.Upload(context.Background(), f.tenant, in)
	require.NoError(t, err)

	again := csvUpload(csvRows(2))
	again.IdempotencyKey = "upload-1"
	second, err := f.svc.Upload(context.Background(), f.tenant, again)
	require.NoError(t, err, "a replay must not trip the open-phone check")

	assert.Equal(t, first.TaskCount, second.TaskCount)
	assert.Equal(t, first.Distribution.Assignments, second.Distribution.Assignments)
	tasks, _ := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: f.tenant})
	assert.Len(t, tasks, 2)
}

func TestUpload_IdempotencyKeyIsPerTenant(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)
	other := uuid.New()
	bob := f.addTenantAgent(t, other, "bob", true)

	in := csvUpload(csvRows(3))
	in.IdempotencyKey = "k1"
	_, err := f.svc.Upload(context.Background(), f.tenant, in)
	require.NoError(t, err)

	theirs := csvUpload(csvRows(5))
	theirs.IdempotencyKey = "k1"
	res, err := f.svc.Upload(context.Background(), other, theirs)
	require.NoError(t, err)

	assert.Equal(t, 5, res.TaskCount)
	require.Len(t, res.Distribution.Assignments, 1)
	assert.Equal(t, bob.ID, res.Distribution.Assignments[0].AgentID)

	tasks, err := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: other})
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
	mine, err := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: f.tenant})
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestUpload_UndecodableStoredResultIsDiscarded(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)
	require.NoError(t, f.cache.Store(context.Background(), f.tenant, "k1", "upload", []byte("{not json")))

	in := csvUpload(csvRows(2))
	in.IdempotencyKey = "k1"
	res, err := f.svc.Upload(context.Background(), f.tenant, in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TaskCount)

	stored, ok, err := f.cache.Check(context.Background(), f.tenant, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(stored), `"taskCount":2`)
}

// gateLocker holds every caller until n of them are waiting for the lock, so
// each has finished its unlocked work before any enters the critical section.
type gateLocker struct {
	portlocker.AdvisoryLocker
	arrived sync.WaitGroup
}

func newGateLocker(n int) *gateLocker {
	g := &gateLocker{AdvisoryLocker: memory.NewLocker()}
	g.arrived.Add(n)
	return g
}

func (g *gateLocker) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	g.arrived.Done()
	g.arrived.Wait()
	return g.AdvisoryLocker.WithLock(ctx, key, fn)
}

func TestUpload_ConcurrentSamePhonesAcceptsOneBatch(t *testing.T) {
	f := newFixtureWithLocker(t, distribution.DefaultLimits(), newGateLocker(2))
	f.addAgent(t, "ann", true)
	f.addAgent(t, "bob", true)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(5)))
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, intake.ErrValidation):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	tasks, err := f.tasks.List(context.Background(), domaintask.ListFilters{TenantID: f.tenant})
	require.NoError(t, err)
	assert.Len(t, tasks, 5)
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)
}

// The empty-file check must not reach the agent pool.
func TestUpload_EmptyBatchQueriesNoAgents(t *testing.T) {
	ctrl := gomock.NewController(t)
	dist := mocks.NewMockDistributor(ctrl)
	taskRepo := mocks.NewMockTaskRepository(ctrl)
	agentRepo := mocks.NewMockAgentRepository(ctrl)
	locker := mocks.NewMockAdvisoryLocker(ctrl)
	svc := tasksvc.NewService(tasksvc.Deps{
		Repo: taskRepo, AgentRepo: agentRepo, Distributor: dist, Locker: locker,
		Idempotency: mocks.NewMockStore(ctrl), Bus: mocks.NewMockEventBus(ctrl),
		Metrics: metrics.NewNop(), ReadRows: spreadsheet.Read, Limits: intake.DefaultLimits(),
	})

	_, err := svc.Upload(context.Background(), uuid.New(), csvUpload("FirstName,Phone,Notes\n"))
	assert.ErrorIs(t, err, intake.ErrNoRecords)
}

func TestUpload_PersistFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	dist := mocks.NewMockDistributor(ctrl)
	taskRepo := mocks.NewMockTaskRepository(ctrl)
	locker := mocks.NewMockAdvisoryLocker(ctrl)
	svc := tasksvc.NewService(tasksvc.Deps{
		Repo: taskRepo, AgentRepo: mocks.NewMockAgentRepository(ctrl), Distributor: dist, Locker: locker,
		Idempotency: mocks.NewMockStore(ctrl), Bus: mocks.NewMockEventBus(ctrl),
		Metrics: metrics.NewNop(), ReadRows: spreadsheet.Read, Limits: intake.DefaultLimits(),
	})
	tenant := uuid.New()

	taskRepo.EXPECT().OpenPhones(gomock.Any(), tenant, []string{"5551234567"}).Return(nil, nil)
	locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ int64, fn func(context.Context) error) error { return fn(ctx) })
	dist.EXPECT().Distribute(gomock.Any(), tenant, 1).
		Return(distribution.NewPlan([]distribution.Load{{AgentID: uuid.New()}}, 1), nil, nil)
	taskRepo.EXPECT().CreateBatch(gomock.Any(), gomock.Len(1)).Return(nil, errors.New("db down"))

	_, err := svc.Upload(context.Background(), tenant, csvUpload("FirstName,Phone\nAnn,5551234567\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create tasks")
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestUpdateStatus_CompletedAt(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	f.addAgent(t, "ann", true)
	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(1)))
	require.NoError(t, err)
	tasks, _ := f.svc.List(context.Background(), f.tenant, nil)
	id := tasks[0].ID

	done, err := f.svc.UpdateStatus(context.Background(), f.tenant, id, domaintask.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.WithinDuration(t, time.Now(), *done.CompletedAt, time.Minute)

	back, err := f.svc.UpdateStatus(context.Background(), f.tenant, id, domaintask.StatusInProgress)
	require.NoError(t, err)
	assert.Nil(t, back.CompletedAt)

	_, err = f.svc.UpdateStatus(context.Background(), f.tenant, id, domaintask.Status("archived"))
	assert.ErrorIs(t, err, domaintask.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(context.Background(), f.tenant, uuid.New(), domaintask.StatusFailed)
	assert.ErrorIs(t, err, domaintask.ErrNotFound)
}

func TestListAndListByAgent(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	ann := f.addAgent(t, "ann", true)
	f.addAgent(t, "bob", true)
	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(5)))
	require.NoError(t, err)

	all, err := f.svc.List(context.Background(), f.tenant, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	mine, err := f.svc.ListByAgent(context.Background(), f.tenant, ann.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	_, err = f.svc.ListByAgent(context.Background(), f.tenant, uuid.New())
	assert.ErrorIs(t, err, domainagent.ErrNotFound)

	bogus := domaintask.Status("bogus")
	_, err = f.svc.List(context.Background(), f.tenant, &bogus)
	assert.ErrorIs(t, err, domaintask.ErrInvalidStatus)
}

func TestDelete_DetachesFromAgent(t *testing.T) {
	f := newFixture(t, distribution.DefaultLimits())
	ann := f.addAgent(t, "ann", true)
	_, err := f.svc.Upload(context.Background(), f.tenant, csvUpload(csvRows(2)))
	require.NoError(t, err)
	tasks, _ := f.svc.ListByAgent(context.Background(), f.tenant, ann.ID)

	require.NoError(t, f.svc.Delete(context.Background(), f.tenant, tasks[0].ID))

	got, err := f.agents.GetByID(context.Background(), f.tenant, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Load())
	testutil.AssertAssignmentsConsistent(t, f.agents, f.tasks, f.tenant)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.tenant, tasks[0].ID), domaintask.ErrNotFound)
}
