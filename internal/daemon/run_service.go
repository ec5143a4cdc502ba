package daemon

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"relay/internal/logging"
	"relay/internal/store"
	"relay/internal/types"
)

var errNoResult = errors.New("provider stream ended without a result message")

// RunServiceOptions carries tuning knobs; zero values fall back to the
// recorder/tee/webhook defaults.
type RunServiceOptions struct {
	BatchSize      int
	FlushInterval  time.Duration
	TeeMaxLag      int
	WebhookURL     string
	Model          string
	MaxTurns       int
	IncludePartial bool
}

// RunService owns the run lifecycle: admission, session lineage,
// cancellation, terminal classification, persistence of the run record,
// and best-effort lifecycle notification. Execution failures are folded
// into the returned RunResult; only pre-execution validation and lookup
// failures come back as errors.
type RunService struct {
	provider Provider
	runs     store.RunStore
	messages store.RunMessageStore
	registry *activeRegistry
	notifier lifecycleNotifier
	logger   logging.Logger
	opts     RunServiceOptions
}

func NewRunService(provider Provider, repo store.Repository, notifier lifecycleNotifier, logger logging.Logger, opts RunServiceOptions) *RunService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RunService{
		provider: provider,
		runs:     repo.Runs(),
		messages: repo.RunMessages(),
		registry: newActiveRegistry(),
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

type StartRunParams struct {
	Cwd        string            `json:"cwd"`
	Prompt     string            `json:"prompt"`
	Images     []ImageAttachment `json:"images,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Model      string            `json:"model,omitempty"`
	MaxTurns   int               `json:"max_turns,omitempty"`
}

type ContinueRunParams struct {
	SessionID  string            `json:"session_id"`
	Prompt     string            `json:"prompt"`
	Images     []ImageAttachment `json:"images,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Model      string            `json:"model,omitempty"`
	MaxTurns   int               `json:"max_turns,omitempty"`
}

type turnInput struct {
	prompt     string
	images     []ImageAttachment
	resumeID   string
	webhookURL string
	model      string
	maxTurns   int
}

// Start admits a fresh run and blocks until its terminal transition.
func (s *RunService) Start(ctx context.Context, params StartRunParams) (*types.RunResult, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, invalidError("prompt is required", nil)
	}
	if strings.TrimSpace(params.Cwd) == "" {
		return nil, invalidError("cwd is required", nil)
	}
	run := &types.Run{
		ID:        uuid.NewString(),
		Cwd:       params.Cwd,
		Mode:      types.RunModeFresh,
		Status:    types.RunStatusRunning,
		Prompt:    params.Prompt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		return nil, unavailableError("failed to persist run", err)
	}
	return s.execute(ctx, run, turnInput{
		prompt:     params.Prompt,
		images:     params.Images,
		webhookURL: params.WebhookURL,
		model:      params.Model,
		maxTurns:   params.MaxTurns,
	}), nil
}

// Resume continues an existing session's history.
func (s *RunService) Resume(ctx context.Context, params ContinueRunParams) (*types.RunResult, error) {
	return s.continueSession(ctx, params, types.RunModeResume)
}

// Fork branches a new session off an existing session's history.
func (s *RunService) Fork(ctx context.Context, params ContinueRunParams) (*types.RunResult, error) {
	return s.continueSession(ctx, params, types.RunModeFork)
}

func (s *RunService) continueSession(ctx context.Context, params ContinueRunParams, mode types.RunMode) (*types.RunResult, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, invalidError("prompt is required", nil)
	}
	sessionID := strings.TrimSpace(params.SessionID)
	if sessionID == "" {
		return nil, invalidError("session_id is required", nil)
	}
	parent, ok, err := s.runs.LatestBySession(ctx, sessionID)
	if err != nil {
		return nil, unavailableError("session lookup failed", err)
	}
	if !ok {
		return nil, notFoundError("session not found: "+sessionID, nil)
	}
	run := &types.Run{
		ID:              uuid.NewString(),
		Cwd:             parent.Cwd,
		ParentSessionID: sessionID,
		Mode:            mode,
		Status:          types.RunStatusRunning,
		Prompt:          params.Prompt,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		return nil, unavailableError("failed to persist run", err)
	}
	return s.execute(ctx, run, turnInput{
		prompt:     params.Prompt,
		images:     params.Images,
		resumeID:   sessionID,
		webhookURL: params.WebhookURL,
		model:      params.Model,
		maxTurns:   params.MaxTurns,
	}), nil
}

// Cancel requires a live registry entry; unknown or finished runs report a
// conflict. The winner of the registry removal owns the status write, so a
// second Cancel is idempotently rejected.
func (s *RunService) Cancel(ctx context.Context, runID string) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return invalidError("run id is required", nil)
	}
	cancel, _, ok := s.registry.TakeForCancel(runID)
	if !ok {
		return conflictError("run already completed or unknown: "+runID, nil)
	}
	cancel()
	status := types.RunStatusCancelled
	if err := s.runs.Update(ctx, runID, types.RunUpdate{Status: &status}); err != nil {
		s.logger.Error("persist cancelled status failed",
			logging.F("run_id", runID), logging.F("err", err))
	}
	s.logger.Info("run cancelled", logging.F("run_id", runID))
	return nil
}

func (s *RunService) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	run, ok, err := s.runs.Get(ctx, strings.TrimSpace(runID))
	if err != nil {
		return nil, unavailableError("run lookup failed", err)
	}
	if !ok {
		return nil, notFoundError("run not found: "+runID, nil)
	}
	return run, nil
}

// GetRunDetail pairs the run row with its recorded message count.
func (s *RunService) GetRunDetail(ctx context.Context, runID string) (*types.RunDetail, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	count, err := s.messages.Count(ctx, run.ID)
	if err != nil {
		return nil, unavailableError("message count failed", err)
	}
	return &types.RunDetail{Run: *run, MessageCount: count}, nil
}

func (s *RunService) GetRunMessages(ctx context.Context, runID string, limit int) ([]*types.RunMessage, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	records, err := s.messages.List(ctx, strings.TrimSpace(runID), limit)
	if err != nil {
		return nil, unavailableError("message lookup failed", err)
	}
	return records, nil
}

func (s *RunService) ListRuns(ctx context.Context, filter store.RunFilter) ([]*types.Run, error) {
	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, unavailableError("run listing failed", err)
	}
	return runs, nil
}

func (s *RunService) ListSessions(ctx context.Context) ([]*types.SessionSummary, error) {
	sessions, err := s.runs.ListSessions(ctx)
	if err != nil {
		return nil, unavailableError("session listing failed", err)
	}
	return sessions, nil
}

func (s *RunService) ListActive() []types.ActiveRun {
	return s.registry.List()
}

// execute runs one admitted run to its terminal transition. Everything
// past this point is converted into the RunResult, never returned as an
// error.
func (s *RunService) execute(ctx context.Context, run *types.Run, turn turnInput) *types.RunResult {
	started := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	webhookURL := strings.TrimSpace(turn.webhookURL)
	if webhookURL == "" {
		webhookURL = s.opts.WebhookURL
	}

	s.registry.Add(run.ID, run.Mode, webhookURL, started, cancel)
	s.notifier.Dispatch(webhookURL, types.WebhookEvent{
		Event:     types.WebhookRunStarted,
		RunID:     run.ID,
		Timestamp: time.Now().UTC(),
		Payload:   types.RunStartedPayload{Mode: run.Mode, Cwd: run.Cwd},
	})
	s.logger.Info("run started",
		logging.F("run_id", run.ID),
		logging.F("mode", string(run.Mode)),
		logging.F("cwd", run.Cwd),
	)

	model := turn.model
	if model == "" {
		model = s.opts.Model
	}
	maxTurns := turn.maxTurns
	if maxTurns <= 0 {
		maxTurns = s.opts.MaxTurns
	}

	var (
		outcome *types.AgentMessage
		execErr error
	)
	stream, err := s.provider.Invoke(runCtx, InvokeRequest{
		Cwd:             run.Cwd,
		Prompt:          turn.prompt,
		Images:          turn.images,
		ResumeSessionID: turn.resumeID,
		Model:           model,
		MaxTurns:        maxTurns,
		IncludePartial:  s.opts.IncludePartial,
	})
	if err != nil {
		execErr = err
	} else {
		recordSrc, processSrc := teeTurnStream(runCtx, stream, s.opts.TeeMaxLag)
		recorder := newRunRecorder(run.ID, s.messages, s.logger, s.opts.BatchSize, s.opts.FlushInterval)
		recDone := make(chan struct{})
		go func() {
			// The recording branch drains with its own context so the
			// final flush still happens after cancellation.
			recordBranch(context.Background(), recordSrc, recorder)
			close(recDone)
		}()
		outcome, execErr = s.processTurn(runCtx, run, processSrc)
		<-recDone
	}
	if execErr == nil && outcome == nil {
		execErr = errNoResult
	}

	return s.finish(run, started, webhookURL, outcome, execErr)
}

// processTurn consumes the lifecycle branch: it captures the session id
// from the init message before any later message can be classified, and
// retains the terminal result as the candidate outcome.
func (s *RunService) processTurn(ctx context.Context, run *types.Run, branch messageSource) (*types.AgentMessage, error) {
	var outcome *types.AgentMessage
	for {
		msg, err := branch.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return outcome, nil
			}
			return outcome, err
		}
		if msg.IsInit() && msg.SessionID != "" && run.SessionID == "" {
			s.captureSession(run, msg.SessionID)
		}
		if msg.IsResult() {
			outcome = msg
		}
	}
}

// captureSession records the provider-assigned session id exactly once,
// in both the registry entry and the persisted row.
func (s *RunService) captureSession(run *types.Run, sessionID string) {
	run.SessionID = sessionID
	s.registry.SetSessionID(run.ID, sessionID)
	if err := s.runs.Update(context.Background(), run.ID, types.RunUpdate{SessionID: &sessionID}); err != nil {
		s.logger.Error("persist session id failed",
			logging.F("run_id", run.ID), logging.F("err", err))
	}
	s.logger.Debug("session captured",
		logging.F("run_id", run.ID), logging.F("session_id", sessionID))
}

func (s *RunService) finish(run *types.Run, started time.Time, webhookURL string, outcome *types.AgentMessage, execErr error) *types.RunResult {
	duration := time.Since(started).Milliseconds()

	status, resultType, resultJSON := classifyOutcome(outcome, execErr)
	_, removed := s.registry.Remove(run.ID)
	if !removed {
		// Cancel claimed the transition and already persisted the status.
		status = types.RunStatusCancelled
	}

	update := types.RunUpdate{DurationMs: &duration}
	if removed {
		update.Status = &status
	}
	if resultType != "" {
		update.ResultType = &resultType
	}
	if resultJSON != "" {
		update.ResultJSON = &resultJSON
	}
	if err := s.runs.Update(context.Background(), run.ID, update); err != nil {
		s.logger.Error("persist terminal run state failed",
			logging.F("run_id", run.ID), logging.F("err", err))
	}

	result := &types.RunResult{
		RunID:      run.ID,
		SessionID:  run.SessionID,
		Status:     status,
		ResultType: resultType,
		ResultJSON: resultJSON,
		DurationMs: duration,
	}
	if status == types.RunStatusError && execErr != nil {
		result.Error = execErr.Error()
	}

	s.dispatchTerminal(webhookURL, run, status, outcome, execErr, duration)
	s.logger.Info("run finished",
		logging.F("run_id", run.ID),
		logging.F("status", string(status)),
		logging.F("duration_ms", duration),
	)
	return result
}

// classifyOutcome derives the terminal status. A result subtype carrying
// the provider's error prefix means the turn itself failed; an execution
// error that is not a cancellation becomes status error with the message
// as the serialized result.
func classifyOutcome(outcome *types.AgentMessage, execErr error) (types.RunStatus, string, string) {
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, ErrTurnCancelled) {
			return types.RunStatusCancelled, "", ""
		}
		return types.RunStatusError, "", execErr.Error()
	}
	resultType := outcome.Subtype
	resultJSON := string(outcome.Raw)
	if outcome.ResultDenotesError() {
		return types.RunStatusError, resultType, resultJSON
	}
	return types.RunStatusCompleted, resultType, resultJSON
}

func (s *RunService) dispatchTerminal(webhookURL string, run *types.Run, status types.RunStatus, outcome *types.AgentMessage, execErr error, duration int64) {
	event := types.WebhookEvent{
		RunID:     run.ID,
		SessionID: run.SessionID,
		Timestamp: time.Now().UTC(),
	}
	switch {
	case status == types.RunStatusCompleted:
		summary := outcome.ResultSummary()
		event.Event = types.WebhookRunCompleted
		event.Payload = types.RunCompletedPayload{
			DurationMs: duration,
			CostUSD:    summary.CostUSD,
			Result:     summary.Result,
		}
	case status == types.RunStatusCancelled:
		event.Event = types.WebhookRunCancelled
		event.Payload = types.RunCancelledPayload{DurationMs: duration}
	case execErr != nil:
		// An execution error outranks any retained result; a stream that
		// broke after its result line still failed for the stream's reason.
		event.Event = types.WebhookRunError
		event.Payload = types.RunErrorPayload{
			Code:    "execution_error",
			Message: execErr.Error(),
		}
	default:
		summary := outcome.ResultSummary()
		message := summary.Result
		if message == "" {
			message = outcome.Subtype
		}
		event.Event = types.WebhookRunFailed
		event.Payload = types.RunFailedPayload{DurationMs: duration, Error: message}
	}
	s.notifier.Dispatch(webhookURL, event)
}
