package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"SectorPulse/internal/batch"
	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
	"SectorPulse/internal/notifier"
	"SectorPulse/internal/recorder"
)

// Runner is the batch surface the scheduler drives.
type Runner interface {
	RunDaily(ctx context.Context, asOf time.Time) (*batch.Report, error)
	Running() bool
}

// Scheduler manages the cron jobs and answers chat commands.
type Scheduler struct {
	Cron   *cron.Cron
	Runner Runner
	Store  recorder.Store
	Ctx    context.Context

	logger *zap.Logger
}

// NewScheduler creates a new Scheduler. Jobs run on ctx.
func NewScheduler(ctx context.Context, runner Runner, store recorder.Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		Runner: runner,
		Store:  store,
		Ctx:    ctx,
		logger: logging.OrNop(logger),
	}
}

// RegisterDaily registers the daily batch under a six field cron spec.
func (s *Scheduler) RegisterDaily(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow executes the daily task immediately (for RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.dailyTask()
}

func (s *Scheduler) dailyTask() {
	s.runDaily(time.Time{})
}

func (s *Scheduler) runDaily(asOf time.Time) {
	s.logger.Info("running daily batch")
	report, err := s.Runner.RunDaily(s.Ctx, asOf)
	if errors.Is(err, batch.ErrRunInProgress) {
		s.logger.Warn("daily batch skipped, previous run still active")
		return
	}
	if err != nil {
		s.logger.Error("daily batch failed", zap.Error(err))
		if report == nil {
			return
		}
	}
	s.logger.Info("daily batch done",
		zap.String("run_id", report.RunID),
		zap.Int("results", len(report.Results)),
		zap.Int("actionable", len(report.Actionable())),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("errors", len(report.Errors)),
		zap.Strings("warnings", report.Warnings))
}

const helpText = "Available commands:\n" +
	"/run [YYYY-MM-DD] - start the batch (optionally as of a date)\n" +
	"/latest - latest actionable signals\n" +
	"/macro - latest market sentiment\n" +
	"/help - this message"

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	// Group chats append the bot name: /run@SectorPulseBot.
	name, _, _ := strings.Cut(fields[0], "@")

	switch name {
	case "/run":
		var asOf time.Time
		if len(fields) > 1 {
			d, err := time.Parse(recorder.DateLayout, fields[1])
			if err != nil {
				return "invalid date, expected YYYY-MM-DD"
			}
			asOf = d
		}
		if s.Runner.Running() {
			return "a batch is already running"
		}
		go s.runDaily(asOf)
		return "batch started, results will be posted when done"
	case "/latest":
		results, err := s.Store.QueryLatest(ctx, nil)
		if err != nil {
			s.logger.Error("query latest failed", zap.Error(err))
			return "failed to load results"
		}
		return notifier.FormatResultsText(actionable(results))
	case "/macro":
		m, date, err := s.Store.LatestMacro(ctx)
		if err != nil {
			s.logger.Error("query macro failed", zap.Error(err))
			return "failed to load sentiment"
		}
		if m == nil {
			return "no sentiment stored yet"
		}
		return date.Format(recorder.DateLayout) + "\n" + notifier.FormatMacroHTML(m)
	default:
		return helpText
	}
}

func actionable(results []model.AnalysisResult) []model.AnalysisResult {
	var out []model.AnalysisResult
	for _, r := range results {
		if r.Signal.Actionable() {
			out = append(out, r)
		}
	}
	return out
}
