// Package scheduler drives the strategy engine from cron specs in exchange
// time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"nifty-strangler/internal/config"
	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/strategy"
	"nifty-strangler/pkg/utils"
)

// Dispatcher runs engine commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, req strategy.Request) (strategy.Response, error)
}

// Job binds a cron spec to an engine command.
type Job struct {
	Name    string
	Spec    string
	Command strategy.Command
}

// Jobs returns the lifecycle jobs described by cfg.
func Jobs(cfg config.SchedulerConfig) []Job {
	jobs := []Job{
		{Name: "day_reset", Spec: cfg.DayReset, Command: strategy.CmdResetDay},
		{Name: "market_open", Spec: cfg.MarketOpen, Command: strategy.CmdStart},
		{Name: "no_new_trades", Spec: cfg.NoNewTrades, Command: strategy.CmdPause},
		{Name: "force_close", Spec: cfg.ForceClose, Command: strategy.CmdForceClose},
		{Name: "eod_report", Spec: cfg.EODReport, Command: strategy.CmdEODReport},
	}
	if cfg.MonitorInterval > 0 {
		jobs = append(jobs, Job{
			Name:    "monitor",
			Spec:    fmt.Sprintf("@every %s", cfg.MonitorInterval),
			Command: strategy.CmdMonitor,
		})
	}
	return jobs
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	logger     zerolog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	entries map[string]cron.EntryID
}

// New registers every job. Overlapping runs of the same job are skipped
// and panics are recovered.
func New(cfg config.SchedulerConfig, jobs []Job, d Dispatcher, logger zerolog.Logger) (*Scheduler, error) {
	loc := utils.IndiaLocation
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, errs.NewValidationError("scheduler.timezone", cfg.Timezone, err.Error())
		}
		loc = l
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dispatcher: d,
		logger:     logger,
		baseCtx:    context.Background(),
		entries:    make(map[string]cron.EntryID),
	}

	for _, job := range jobs {
		if job.Spec == "" {
			logger.Warn().Str("job", job.Name).Msg("Job has no schedule, skipped")
			continue
		}
		job := job
		id, err := s.cron.AddFunc(job.Spec, func() { s.run(job) })
		if err != nil {
			return nil, errs.NewValidationError("scheduler."+job.Name, job.Spec, err.Error())
		}
		s.entries[job.Name] = id
	}

	return s, nil
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	start := time.Now()
	resp, err := s.dispatcher.Dispatch(ctx, strategy.Request{Command: job.Command})
	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.
		Str("job", job.Name).
		Str("command", job.Command.String()).
		Bool("ok", resp.OK).
		Str("message", resp.Message).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job ran")
}

// Start begins firing jobs. ctx is passed to every dispatched command.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Stop stops firing and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Next returns the next fire time of a named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
