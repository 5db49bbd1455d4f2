package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/llm"
)

const (
	HealthCheckJob  = "llm-health-check"
	PruneHistoryJob = "prune-history"
)

// GeneratorFunc returns the current model client.
type GeneratorFunc func() llm.Generator

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *db.DB
	generator GeneratorFunc
	clock     clockwork.Clock
	timezone  *time.Location
	retention int
}

// Config holds scheduler configuration
type Config struct {
	Timezone      string
	RetentionDays int // 0 disables pruning
	Clock         clockwork.Clock
}

// New creates a new scheduler
func New(database *db.DB, generator GeneratorFunc, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz), gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		db:        database,
		generator: generator,
		clock:     clock,
		timezone:  tz,
		retention: cfg.RetentionDays,
	}, nil
}

// Start starts the scheduler and registers all jobs
func (s *Scheduler) Start() error {
	// Check the model endpoint every 5 minutes
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(s.track, HealthCheckJob, s.healthCheck),
		gocron.WithName(HealthCheckJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("registering %s: %w", HealthCheckJob, err)
	}

	// Prune old history daily at 03:00
	if s.retention > 0 {
		_, err = s.scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
			gocron.NewTask(s.track, PruneHistoryJob, s.pruneHistory),
			gocron.WithName(PruneHistoryJob),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("registering %s: %w", PruneHistoryJob, err)
		}
	}

	s.scheduler.Start()
	log.Printf("Scheduler started (%s, %d jobs)", s.timezone, len(s.scheduler.Jobs()))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// track records a job run in the scheduler_runs table.
func (s *Scheduler) track(name string, fn func() error) {
	runID, err := s.db.StartSchedulerRun(name)
	if err != nil {
		log.Printf("Error recording start of %s: %v", name, err)
	}

	errMsg := ""
	if err := fn(); err != nil {
		errMsg = err.Error()
		log.Printf("Job %s failed: %v", name, err)
	}

	if runID > 0 {
		if err := s.db.CompleteSchedulerRun(runID, errMsg); err != nil {
			log.Printf("Error recording completion of %s: %v", name, err)
		}
	}
}

func (s *Scheduler) healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.CheckHealth(ctx)
}

// CheckHealth pings the current model client.
func (s *Scheduler) CheckHealth(ctx context.Context) error {
	gen := s.generator()
	if err := gen.HealthCheck(ctx); err != nil {
		return fmt.Errorf("model %s unreachable: %w", gen.Model(), err)
	}
	return nil
}

func (s *Scheduler) pruneHistory() error {
	_, err := s.PruneHistory()
	return err
}

// PruneHistory deletes research and word study records older than the
// retention window. It is a no-op when retention is disabled.
func (s *Scheduler) PruneHistory() (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().In(s.timezone).AddDate(0, 0, -s.retention)
	n, err := s.db.PruneResearch(cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning history before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	if n > 0 {
		log.Printf("Pruned %d history records older than %s", n, cutoff.Format(time.DateOnly))
	}
	return n, nil
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	for _, j := range s.scheduler.Jobs() {
		if j.Name() == name {
			return j.RunNow()
		}
	}
	return fmt.Errorf("unknown job %q", name)
}
