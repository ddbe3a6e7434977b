package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	"github.com/alanyang/call-dispatch/internal/domain/distribution"
	"github.com/alanyang/call-dispatch/internal/domain/event"
	"github.com/alanyang/call-dispatch/internal/domain/intake"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	portagent "github.com/alanyang/call-dispatch/internal/port/agent"
	portdist "github.com/alanyang/call-dispatch/internal/port/distributor"
	portbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
	portidem "github.com/alanyang/call-dispatch/internal/port/idempotency"
	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
	portmetrics "github.com/alanyang/call-dispatch/internal/port/metrics"
	porttask "github.com/alanyang/call-dispatch/internal/port/task"
)

const (
	opUpload = "upload_tasks"

	msgPhoneTaken = "Phone number already exists"
)

// Upload outcomes, used as the metrics label.
const (
	resultOK          = "ok"
	resultInvalidFile = "invalid_file"
	resultInvalidRows = "invalid_rows"
	resultIneligible  = "ineligible"
	resultError       = "error"
)

// RowReader parses an uploaded file into raw rows.
type RowReader func(name string, r io.Reader) ([]intake.Row, error)

type Deps struct {
	Repo        porttask.Repository
	AgentRepo   portagent.Repository
	Distributor portdist.Distributor
	Locker      portlocker.AdvisoryLocker
	Idempotency portidem.Store
	Bus         portbus.EventBus
	Metrics     portmetrics.Recorder
	ReadRows    RowReader
	Limits      intake.Limits
}

// Service handles task intake and the task lifecycle after assignment.
type Service struct {
	repo        porttask.Repository
	agentRepo   portagent.Repository
	distributor portdist.Distributor
	locker      portlocker.AdvisoryLocker
	idem        portidem.Store
	bus         portbus.EventBus
	metrics     portmetrics.Recorder
	readRows    RowReader
	limits      intake.Limits
	now         func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		repo:        d.Repo,
		agentRepo:   d.AgentRepo,
		distributor: d.Distributor,
		locker:      d.Locker,
		idem:        d.Idempotency,
		bus:         d.Bus,
		metrics:     d.Metrics,
		readRows:    d.ReadRows,
		limits:      d.Limits,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type UploadInput struct {
	File intake.File
	Body io.Reader
	// IdempotencyKey, when set, makes a retried upload replay the first result.
	IdempotencyKey string
}

type UploadResult struct {
	Message      string              `json:"message"`
	TaskCount    int                 `json:"taskCount"`
	Distribution distribution.Result `json:"distribution"`
	Warnings     []string            `json:"warnings"`
}

// Upload validates the file and every row, then persists the tasks spread
// round-robin over the eligible agents. Any invalid row rejects the whole
// upload and nothing is written.
func (s *Service) Upload(ctx context.Context, tenantID uuid.UUID, in UploadInput) (UploadResult, error) {
	if in.IdempotencyKey != "" {
		if res, ok, err := s.replay(ctx, tenantID, in.IdempotencyKey); err != nil || ok {
			return res, err
		}
	}

	res, err := s.upload(ctx, tenantID, in)
	if err != nil {
		s.metrics.RecordUpload(uploadOutcome(err), 0)
		return UploadResult{}, err
	}
	s.metrics.RecordUpload(resultOK, res.TaskCount)

	if in.IdempotencyKey != "" {
		if data, err := json.Marshal(res); err != nil {
			slog.ErrorContext(ctx, "failed to encode upload result", "tenant_id", tenantID, "error", err)
		} else if err := s.idem.Store(context.WithoutCancel(ctx), tenantID, in.IdempotencyKey, opUpload, data); err != nil {
			slog.ErrorContext(ctx, "failed to store idempotency key", "tenant_id", tenantID, "error", err)
		}
	}
	return res, nil
}

// replay returns the tenant's stored result for key. A stored result that no
// longer decodes is dropped so the upload runs again instead of failing forever.
func (s *Service) replay(ctx context.Context, tenantID uuid.UUID, key string) (UploadResult, bool, error) {
	stored, ok, err := s.idem.Check(ctx, tenantID, key)
	if err != nil {
		return UploadResult{}, false, fmt.Errorf("check idempotency key: %w", err)
	}
	if !ok {
		return UploadResult{}, false, nil
	}

	var res UploadResult
	if err := json.Unmarshal(stored, &res); err != nil {
		slog.WarnContext(ctx, "discarding undecodable upload result",
			"tenant_id", tenantID, "idempotency_key", key, "error", err)
		if err := s.idem.Invalidate(ctx, tenantID, key); err != nil {
			return UploadResult{}, false, fmt.Errorf("invalidate idempotency key: %w", err)
		}
		return UploadResult{}, false, nil
	}
	slog.InfoContext(ctx, "replaying upload", "tenant_id", tenantID, "idempotency_key", key)
	return res, true, nil
}

func (s *Service) upload(ctx context.Context, tenantID uuid.UUID, in UploadInput) (UploadResult, error) {
	if err := intake.ValidateFile(in.File, s.limits); err != nil {
		return UploadResult{}, err
	}
	rows, err := s.readRows(in.File.Name, in.Body)
	if err != nil {
		return UploadResult{}, err
	}

	batch, err := intake.ValidateBatch(rows, s.limits)
	if err != nil {
		return UploadResult{}, err
	}
	if err := batch.Err(); err != nil {
		return UploadResult{}, err
	}

	var res UploadResult
	err = s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		// Open phones are read under the lock so a concurrent upload of the
		// same numbers sees this one's tasks.
		taken, err := s.repo.OpenPhones(ctx, tenantID, batch.Phones())
		if err != nil {
			return fmt.Errorf("check existing phones: %w", err)
		}
		batch.RejectPhones(taken, msgPhoneTaken)
		if err := batch.Err(); err != nil {
			return err
		}

		plan, warnings, err := s.distributor.Distribute(ctx, tenantID, len(batch.ValidRecords))
		switch {
		case errors.Is(err, distribution.ErrNoAgents), errors.Is(err, distribution.ErrAllAgentsAtCapacity):
			return &distribution.IneligibleError{Err: err, Warnings: warnings}
		case err != nil:
			return fmt.Errorf("distribute tasks: %w", err)
		}

		dist, err := s.persist(context.WithoutCancel(ctx), tenantID, batch.ValidRecords, plan)
		if err != nil {
			return err
		}

		s.metrics.RecordCapacityWarnings(len(warnings))
		s.metrics.ObserveWorkloadVariance(plan.Metrics.WorkloadVariance)
		res = UploadResult{
			Message:      "Tasks uploaded successfully",
			TaskCount:    len(batch.ValidRecords),
			Distribution: dist,
			Warnings:     append(append([]string{}, batch.Warnings...), warnings...),
		}
		return nil
	})
	if err != nil {
		return UploadResult{}, err
	}

	slog.InfoContext(ctx, "tasks uploaded",
		"tenant_id", tenantID,
		"tasks", res.TaskCount,
		"agents", res.Distribution.Metrics.ActiveAgents,
		"warnings", len(res.Warnings),
	)
	s.publish(ctx, event.TypeTasksUploaded, tenantID, tenantID)
	return res, nil
}

// persist creates the tasks in one batch, then records them on their agents.
func (s *Service) persist(ctx context.Context, tenantID uuid.UUID, records []intake.Record, plan distribution.Plan) (distribution.Result, error) {
	slots := plan.RoundRobin()
	tasks := make([]domaintask.Task, len(records))
	ids := make([]uuid.UUID, len(records))
	for i, rec := range records {
		agentID := plan.Allocations[slots[i]].AgentID
		tasks[i] = domaintask.New(tenantID, rec.FirstName, rec.Phone, rec.Notes, agentID)
		ids[i] = tasks[i].ID
	}

	if _, err := s.repo.CreateBatch(ctx, tasks); err != nil {
		return distribution.Result{}, fmt.Errorf("create tasks: %w", err)
	}

	res := distribution.Group(plan, slots, ids)
	for _, a := range res.Assignments {
		if err := s.agentRepo.PushTasks(ctx, a.AgentID, a.TaskIDs); err != nil {
			return distribution.Result{}, fmt.Errorf("record tasks on agent %s: %w", a.AgentID, err)
		}
	}
	return res, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status *domaintask.Status) ([]domaintask.Task, error) {
	if status != nil && !status.Valid() {
		return nil, domaintask.ErrInvalidStatus
	}
	tasks, err := s.repo.List(ctx, domaintask.ListFilters{TenantID: tenantID, Status: status})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListByAgent returns the agent's tasks, newest first.
func (s *Service) ListByAgent(ctx context.Context, tenantID, agentID uuid.UUID) ([]domaintask.Task, error) {
	if _, err := s.agentRepo.GetByID(ctx, tenantID, agentID); err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	tasks, err := s.repo.List(ctx, domaintask.ListFilters{TenantID: tenantID, AssignedTo: &agentID})
	if err != nil {
		return nil, fmt.Errorf("list agent tasks: %w", err)
	}
	return tasks, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (domaintask.Task, error) {
	t, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Service) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domaintask.Status) (domaintask.Task, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return domaintask.Task{}, err
	}
	if err := t.Transition(status, s.now()); err != nil {
		return domaintask.Task{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, tenantID, id, t.Status, t.CompletedAt)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("update task status: %w", err)
	}

	s.publish(ctx, event.TypeTaskUpdated, tenantID, id)
	return updated, nil
}

// Delete removes the task and detaches it from its agent.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	err := s.locker.WithLock(ctx, portlocker.TenantKey(tenantID), func(ctx context.Context) error {
		t, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		ctx = context.WithoutCancel(ctx)
		if err := s.repo.Delete(ctx, tenantID, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if t.AssignedAgentID != nil {
			err := s.agentRepo.PullTask(ctx, *t.AssignedAgentID, id)
			if err != nil && !errors.Is(err, domainagent.ErrNotFound) {
				return fmt.Errorf("detach task from agent: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, event.TypeTaskDeleted, tenantID, id)
	return nil
}

func (s *Service) publish(ctx context.Context, t event.Type, tenantID, entityID uuid.UUID) {
	if err := s.bus.Publish(ctx, event.New(t, tenantID, entityID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish task event", "type", t, "entity_id", entityID, "error", err)
	}
}

func uploadOutcome(err error) string {
	switch {
	case errors.Is(err, intake.ErrInvalidFile), errors.Is(err, intake.ErrTooManyRecords):
		return resultInvalidFile
	case errors.Is(err, intake.ErrValidation), errors.Is(err, intake.ErrNoRecords):
		return resultInvalidRows
	case errors.Is(err, distribution.ErrNoAgents), errors.Is(err, distribution.ErrAllAgentsAtCapacity):
		return resultIneligible
	default:
		return resultError
	}
}
