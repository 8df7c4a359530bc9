package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ZoneSentinel/internal/collector"
	"ZoneSentinel/internal/engine"
	"ZoneSentinel/internal/model"
	"ZoneSentinel/internal/notifier"
	"ZoneSentinel/internal/recorder"
)

// ErrBusy is returned when a replay is requested while one is running.
var ErrBusy = errors.New("a replay is already running")

// Scheduler runs backtest replays on a cron spec and on demand.
type Scheduler struct {
	Cron       *cron.Cron
	Collector  *collector.Collector
	Engine     *engine.Engine
	Driver     model.Timeframe
	Timeframes []model.Timeframe
	Notifier   notifier.Notifier // nil disables notifications
	Recorder   recorder.Recorder
	Ctx        context.Context

	running sync.Mutex
	logger  *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, col *collector.Collector, eng *engine.Engine, driver model.Timeframe, tfs []model.Timeframe, n notifier.Notifier, rec recorder.Recorder, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Collector:  col,
		Engine:     eng,
		Driver:     driver,
		Timeframes: tfs,
		Notifier:   n,
		Recorder:   rec,
		Ctx:        ctx,
		logger:     logger,
	}
}

// Register schedules the replay task.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.replayTask); err != nil {
		return fmt.Errorf("register replay task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running replay to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow collects data, runs the backtest, records and announces it.
// Overlapping calls fail with ErrBusy.
func (s *Scheduler) RunNow() (*engine.Result, error) {
	if !s.running.TryLock() {
		return nil, ErrBusy
	}
	defer s.running.Unlock()

	series, err := s.Collector.Collect(s.Ctx, s.Driver, s.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	res, err := s.Engine.Run(s.Ctx, series)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	if err := s.Recorder.RecordRun(res); err != nil {
		s.logger.Error("record run", zap.String("run", res.RunID), zap.Error(err))
	}
	s.trySend(notifier.FormatRunSummary(res))
	return res, nil
}

func (s *Scheduler) replayTask() {
	s.logger.Info("running scheduled replay")
	if _, err := s.RunNow(); err != nil {
		s.logger.Error("scheduled replay failed", zap.Error(err))
		if !errors.Is(err, ErrBusy) {
			s.trySend(fmt.Sprintf("❌ 回测失败: %v", err))
		}
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/run", "立即回测":
		go s.replayTask()
		return "⏳ 回测已开始"
	case "/runs", "最近回测":
		runs, err := s.Recorder.Recent(5)
		if err != nil {
			s.logger.Error("list runs", zap.Error(err))
			return fmt.Sprintf("❌ 读取记录失败: %v", err)
		}
		return notifier.FormatRecentRuns(runs)
	default:
		return notifier.FormatHelp()
	}
}

type retrySender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	var err error
	if r, ok := s.Notifier.(retrySender); ok {
		err = r.SendWithRetry(s.Ctx, text, 3)
	} else {
		err = s.Notifier.Send(s.Ctx, text)
	}
	if err != nil {
		s.logger.Error("send notification", zap.Error(err))
	}
}
