// Package scheduler запускает периодические задачи клиники. В кластере задача в
// каждом слоте выполняется одним экземпляром: слот закрепляется блокировкой в Redis
// и отмечается контрольной точкой в базе.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/cache"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/metrics"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/sl"
)

const defaultLockTTL = time.Minute

// Schedule вычисляет время следующего запуска строго после after.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Every запуск с фиксированным интервалом. Слоты выровнены по границам интервала,
// поэтому у всех экземпляров они совпадают.
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	d := time.Duration(e)
	return after.Truncate(d).Add(d)
}

// DailyAt ежедневный запуск в Hour:Minute по часовому поясу Loc.
type DailyAt struct {
	Hour   int
	Minute int
	Loc    *time.Location
}

func (d DailyAt) Next(after time.Time) time.Time {
	loc := d.Loc
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

// Job периодическая задача. Run возвращает количество изменённых записей.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) (int, error)
	// LockTTL время удержания слота. По умолчанию минута.
	LockTTL time.Duration
}

// Checkpoints хранит время последнего успешного запуска задачи.
type Checkpoints interface {
	GetJobCheckpoint(ctx context.Context, job string) (time.Time, bool, error)
	SaveJobCheckpoint(ctx context.Context, job string, at time.Time) error
}

// Locker распределённая блокировка.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Scheduler запускает зарегистрированные задачи по расписанию.
type Scheduler struct {
	store  Checkpoints
	locker Locker
	log    *slog.Logger
	jobs   []Job
	now    func() time.Time
}

// New создаёт планировщик. locker может быть nil, тогда слоты защищаются только контрольными точками.
func New(store Checkpoints, locker Locker, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// Add регистрирует задачу.
func (s *Scheduler) Add(job Job) {
	if job.LockTTL <= 0 {
		job.LockTTL = defaultLockTTL
	}
	s.jobs = append(s.jobs, job)
}

// Jobs возвращает имена зарегистрированных задач.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

// Run запускает все задачи и блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.log.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := s.log.With(slog.String("job", job.Name))
	due := s.firstDue(ctx, job)
	for {
		wait := due.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := s.RunDue(ctx, job, due); err != nil {
			log.Error("job failed", sl.Err(err))
		}
		due = job.Schedule.Next(s.now())
	}
}

// firstDue возвращает первый слот после последней контрольной точки. Если он уже
// прошёл, задача выполняется сразу. Задача без контрольной точки запускается немедленно.
func (s *Scheduler) firstDue(ctx context.Context, job Job) time.Time {
	now := s.now()
	last, ok, err := s.store.GetJobCheckpoint(ctx, job.Name)
	if err != nil {
		s.log.Warn("failed to read job checkpoint", slog.String("job", job.Name), sl.Err(err))
		return job.Schedule.Next(now)
	}
	if !ok {
		return now
	}
	return job.Schedule.Next(last)
}

// RunDue выполняет задачу за слот due, если её ещё никто не выполнил.
// Возвращает false, если слот уже занят другим экземпляром.
func (s *Scheduler) RunDue(ctx context.Context, job Job, due time.Time) (bool, error) {
	const op = "scheduler.RunDue"
	log := s.log.With(sl.Op(op), slog.String("job", job.Name))

	last, ok, err := s.store.GetJobCheckpoint(ctx, job.Name)
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if ok && !last.Before(due) {
		metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
		return false, nil
	}

	if s.locker != nil {
		key := fmt.Sprintf("%s%s:%d", cache.PrefixJobLock, job.Name, due.Unix())
		acquired, err := s.locker.Acquire(ctx, key, job.LockTTL)
		switch {
		case err != nil:
			log.Warn("job lock unavailable, running without it", sl.Err(err))
		case !acquired:
			log.Debug("job slot taken by another instance")
			metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
			return false, nil
		}
	}

	started := s.now()
	n, err := job.Run(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		return true, fmt.Errorf("%s: %s: %w", op, job.Name, err)
	}
	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
	metrics.JobAffected.WithLabelValues(job.Name).Add(float64(n))

	if err := s.store.SaveJobCheckpoint(ctx, job.Name, started); err != nil {
		log.Warn("failed to save job checkpoint", sl.Err(err))
	}
	if n > 0 {
		log.Info("job finished", slog.Int("affected", n), slog.Duration("took", s.now().Sub(started)))
	}
	return true, nil
}
