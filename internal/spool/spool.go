// Package spool picks up scheduling requests dropped as JSON files into a
// directory and runs them on a cron schedule.
//
// A request "<name>.json" is moved to done/ (or failed/) once handled and
// "<name>.result.json" is written next to it.
package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/schedule"
)

const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Runner schedules one request.
type Runner interface {
	Run(ctx context.Context, req model.AddTaskRequest) (schedule.Result, error)
}

// Stats summarizes one pass over the spool directory.
type Stats struct {
	Processed int
	Failed    int
}

// Spool watches one directory.
type Spool struct {
	dir      string
	runner   Runner
	validate *validator.Validate

	// mu serializes passes so a slow run never overlaps the next tick.
	mu sync.Mutex
}

func New(dir string, runner Runner) *Spool {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Requests share their validation tags with the HTTP API.
	v.SetTagName("binding")
	return &Spool{dir: dir, runner: runner, validate: v}
}

// Result is what gets written next to a handled request.
type Result struct {
	Request string           `json:"request"`
	Error   string           `json:"error,omitempty"`
	Result  *schedule.Result `json:"result,omitempty"`
}

// ProcessOnce handles every pending request in name order.
func (s *Spool) ProcessOnce(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return st, fmt.Errorf("spool: %w", err)
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return st, fmt.Errorf("spool: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		ok, err := s.handle(ctx, name)
		if err != nil {
			// Could not move or record the file; leave it for the next pass.
			appLog.Error("spool: failed to finalize request", err, "file", name)
			continue
		}
		st.Processed++
		if !ok {
			st.Failed++
		}
	}
	if st.Processed > 0 {
		appLog.Info("spool pass completed", "dir", s.dir, "processed", st.Processed, "failed", st.Failed)
	}
	return st, nil
}

// handle runs one request file. ok is false when the request failed.
func (s *Spool) handle(ctx context.Context, name string) (ok bool, err error) {
	path := filepath.Join(s.dir, name)
	out := Result{Request: name}

	req, err := s.load(path)
	if err == nil {
		var res schedule.Result
		res, err = s.runner.Run(ctx, req)
		if res.Status != "" {
			out.Result = &res
		}
	}

	dest := DoneDir
	if err != nil {
		dest = FailedDir
		out.Error = err.Error()
		appLog.Error("spool: request failed", err, "file", name)
	}
	if err := finalize(filepath.Join(s.dir, dest), path, out); err != nil {
		return false, err
	}
	return dest == DoneDir, nil
}

func (s *Spool) load(path string) (model.AddTaskRequest, error) {
	var req model.AddTaskRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return req, fmt.Errorf("invalid request: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return req, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// finalize writes the result file into dir and moves the request beside it.
func finalize(dir, path string, out Result) error {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, base+".result.json"), b, 0o644); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}

// Run processes the spool on spec until ctx is cancelled.
func (s *Spool) Run(ctx context.Context, spec string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("spool pass failed", err, "dir", s.dir)
		}
	}); err != nil {
		return fmt.Errorf("spool: cron spec %q: %w", spec, err)
	}

	appLog.Info("spool started", "dir", s.dir, "cron", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("spool stopped", "dir", s.dir)
	return nil
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
