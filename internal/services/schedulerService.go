package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

const taskTimeout = time.Minute

// Task is a maintenance job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Handler  func(ctx context.Context) error
}

// Sweeper forgets state that has been idle for longer than idle.
type Sweeper interface {
	Sweep(now time.Time, idle time.Duration) int
}

// SchedulerService runs maintenance tasks in the background.
type SchedulerService struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     map[string]Task
}

func NewSchedulerService() *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]Task),
	}
}

// Register schedules task. A task never overlaps with its own previous run.
func (s *SchedulerService) Register(task Task) error {
	_, err := s.scheduler.Every(task.Interval).Tag(task.Name).SingletonMode().Do(func() {
		s.run(task)
	})
	if err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("Error scheduling task")
		return err
	}
	s.tasks[task.Name] = task
	return nil
}

func (s *SchedulerService) run(task Task) {
	ctx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	start := time.Now()
	if err := task.Handler(ctx); err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("Scheduled task failed")
		return
	}
	log.Debug().Str("task", task.Name).Dur("took", time.Since(start)).Msg("Scheduled task completed")
}

// Tasks returns the names of registered tasks.
func (s *SchedulerService) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

func (s *SchedulerService) Start() {
	log.Info().Int("tasks", len(s.tasks)).Msg("Starting scheduler")
	s.scheduler.StartAsync()
}

func (s *SchedulerService) Stop() {
	log.Info().Msg("Stopping scheduler")
	s.scheduler.Stop()
	s.cancel()
}

// MaintenanceTasks returns the periodic jobs: purging dead reset requests,
// dropping idle rate-limit buckets and refreshing the user gauge. idle must
// be at least the longest limiter refill period or a sweep would cut a
// cooldown short.
func MaintenanceTasks(resets PasswordResetService, users UserService, interval, idle time.Duration, sweepers ...Sweeper) []Task {
	return []Task{
		{
			Name:     "purge_reset_requests",
			Interval: interval,
			Handler: func(ctx context.Context) error {
				_, err := resets.Cleanup(ctx)
				return err
			},
		},
		{
			Name:     "sweep_rate_limiters",
			Interval: interval,
			Handler: func(ctx context.Context) error {
				now := time.Now()
				removed := 0
				for _, sw := range sweepers {
					removed += sw.Sweep(now, idle)
				}
				log.Debug().Int("removed", removed).Msg("Swept idle rate limiters")
				return nil
			},
		},
		{
			Name:     "refresh_total_users",
			Interval: 30 * time.Second,
			Handler: func(ctx context.Context) error {
				users.RefreshTotalUsers(ctx)
				return nil
			},
		},
	}
}
