package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/model"
	"github.com/jamesruggles/carbonara/internal/parser"
	"github.com/jamesruggles/carbonara/internal/registry"
	"github.com/jamesruggles/carbonara/internal/tools"
)

// Broadcaster sends output lines to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(runID string, line tools.OutputLine)
}

// Request asks for one tool run against one target.
type Request struct {
	ToolID    string `json:"tool"`
	Target    string `json:"target"`
	ProjectID *int64 `json:"projectId,omitempty"`
}

// ImportRequest stores a report produced outside carbonara.
type ImportRequest struct {
	ToolID    string
	Raw       []byte
	Target    string
	ProjectID *int64
	Source    string
}

// Outcome describes a finished run or import.
type Outcome struct {
	RunID        string        `json:"runId,omitempty"`
	Status       string        `json:"status"`
	ExitCode     *int          `json:"exitCode,omitempty"`
	AssessmentID int64         `json:"assessmentId,omitempty"`
	Result       *model.Result `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Options tune an Executor.
type Options struct {
	// DefaultTimeout applies to tools without their own timeout.
	DefaultTimeout time.Duration
}

type runFunc func(ctx context.Context, spec tools.ToolSpec, output chan<- tools.OutputLine) *tools.ToolResult

// Executor orchestrates the tool run lifecycle.
type Executor struct {
	db          *database.DB
	tools       *registry.Registry
	parsers     *parser.Registry
	broadcaster Broadcaster
	log         *zap.Logger
	opts        Options
	run         runFunc
	builtin     runFunc
	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	wg          sync.WaitGroup
}

func NewExecutor(db *database.DB, reg *registry.Registry, broadcaster Broadcaster, log *zap.Logger, opts Options) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		db:          db,
		tools:       reg,
		parsers:     parser.NewRegistry(reg),
		broadcaster: broadcaster,
		log:         log,
		opts:        opts,
		run:         tools.Run,
		builtin:     runBuiltin,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Run executes req and blocks until the run finishes. The returned error
// covers requests that could not start; tool failures are reported in the
// Outcome.
func (e *Executor) Run(ctx context.Context, req Request) (*Outcome, error) {
	tool, spec, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	runID, err := e.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, runID, req, tool, spec), nil
}

// Start creates a run record and executes it in the background.
func (e *Executor) Start(req Request) (string, error) {
	tool, spec, err := e.prepare(req)
	if err != nil {
		return "", err
	}
	runID, err := e.createRun(context.Background(), req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[runID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.cancels, runID)
			e.mu.Unlock()
			cancel()
		}()
		e.execute(ctx, runID, req, tool, spec)
	}()
	return runID, nil
}

// Cancel stops a background run. It reports whether the run was active.
func (e *Executor) Cancel(runID string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every background run.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.cancels {
		cancel()
	}
}

// Wait blocks until every background run has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Import parses raw as toolID's report and stores it.
func (e *Executor) Import(ctx context.Context, req ImportRequest) (*Outcome, error) {
	tool, ok := e.tools.Tool(req.ToolID)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", req.ToolID)
	}
	id, result, err := e.store(ctx, tool, req.Raw, req.Target, req.ProjectID, req.Source)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: database.RunCompleted, AssessmentID: id, Result: result}, nil
}

func (e *Executor) prepare(req Request) (registry.Tool, tools.ToolSpec, error) {
	tool, ok := e.tools.Tool(req.ToolID)
	if !ok {
		return registry.Tool{}, tools.ToolSpec{}, fmt.Errorf("unknown tool: %s", req.ToolID)
	}
	spec, err := buildToolSpec(tool, req.Target, e.opts.DefaultTimeout)
	if err != nil {
		return registry.Tool{}, tools.ToolSpec{}, fmt.Errorf("build tool spec: %w", err)
	}
	return tool, spec, nil
}

func (e *Executor) createRun(ctx context.Context, req Request) (string, error) {
	run := &database.ToolRun{
		RunID:     uuid.NewString(),
		ProjectID: req.ProjectID,
		ToolName:  req.ToolID,
		Target:    req.Target,
		Status:    database.RunPending,
	}
	if err := e.db.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.RunID, nil
}

func (e *Executor) execute(ctx context.Context, runID string, req Request, tool registry.Tool, spec tools.ToolSpec) *Outcome {
	log := e.log.With(zap.String("run_id", runID), zap.String("tool", tool.ID))
	// Bookkeeping must survive cancellation of the run itself.
	bg := context.WithoutCancel(ctx)

	if err := e.db.UpdateRunStatus(bg, runID, database.RunRunning); err != nil {
		log.Warn("marking run as running failed", zap.Error(err))
	}
	log.Info("tool run started", zap.String("target", req.Target))

	outputCh := make(chan tools.OutputLine, 100)

	run := e.run
	if tool.Builtin {
		run = e.builtin
	}

	var result *tools.ToolResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result = run(ctx, spec, outputCh)
	}()

	for line := range outputCh {
		e.broadcast(runID, line)
	}
	wg.Wait()

	outcome := &Outcome{RunID: runID, Status: database.RunCompleted}
	if result.ExitCode >= 0 {
		code := result.ExitCode
		outcome.ExitCode = &code
	}

	switch {
	case ctx.Err() != nil && !result.TimedOut:
		outcome.Status = database.RunCancelled
		outcome.Error = "run cancelled"
	case result.TimedOut:
		outcome.Status = database.RunFailed
		outcome.Error = fmt.Sprintf("timed out after %s", spec.Timeout)
	case result.ExitCode < 0:
		outcome.Status = database.RunFailed
		outcome.Error = errorText(result.Error)
	case !tool.AcceptsExit(result.ExitCode):
		outcome.Status = database.RunFailed
		outcome.Error = fmt.Sprintf("exit code %d: %s", result.ExitCode, lastLine(result.Stderr))
	}

	if outcome.Status == database.RunCompleted {
		raw, err := readOutput(tool, spec, result.Stdout)
		if err == nil {
			var id int64
			id, outcome.Result, err = e.store(bg, tool, raw, req.Target, req.ProjectID, "")
			outcome.AssessmentID = id
		}
		if err != nil {
			outcome.Status = database.RunFailed
			outcome.Error = err.Error()
		}
	}

	var assessmentID *int64
	if outcome.AssessmentID != 0 {
		assessmentID = &outcome.AssessmentID
	}
	if err := e.db.FinishRun(bg, runID, outcome.Status, outcome.ExitCode, assessmentID, outcome.Error); err != nil {
		log.Error("recording run outcome failed", zap.Error(err))
	}

	if outcome.Error != "" {
		log.Warn("tool run finished", zap.String("status", outcome.Status), zap.String("error", outcome.Error))
		e.broadcast(runID, tools.OutputLine{Timestamp: time.Now(), Stream: tools.StreamStderr, Line: "Error: " + outcome.Error})
	} else {
		log.Info("tool run finished", zap.String("status", outcome.Status), zap.Int64("assessment_id", outcome.AssessmentID), zap.Duration("duration", result.Duration))
	}
	e.broadcast(runID, tools.OutputLine{Done: true, Timestamp: time.Now()})
	return outcome
}

// store normalizes raw according to the tool's output kind and persists it.
func (e *Executor) store(ctx context.Context, tool registry.Tool, raw []byte, target string, projectID *int64, source string) (int64, *model.Result, error) {
	var data any
	var result *model.Result
	switch tool.Output {
	case registry.OutputFindings:
		res, err := e.parsers.Parse(tool.ID, raw, target)
		if err != nil {
			return 0, nil, err
		}
		result, data = res, res
	default:
		trimmed := []byte(strings.TrimSpace(string(raw)))
		if !json.Valid(trimmed) {
			return 0, nil, &parser.ParseError{ToolID: tool.ID, Err: errors.New("output is not valid JSON")}
		}
		data = json.RawMessage(trimmed)
	}

	id, err := e.db.StoreAssessmentData(ctx, projectID, tool.ID, tool.DataType, data, source)
	if err != nil {
		return 0, nil, fmt.Errorf("store %s result: %w", tool.ID, err)
	}
	return id, result, nil
}

func (e *Executor) broadcast(runID string, line tools.OutputLine) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(runID, line)
	}
}

func errorText(err error) string {
	if err == nil {
		return "tool failed"
	}
	return err.Error()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "no error output"
	}
	return s
}
