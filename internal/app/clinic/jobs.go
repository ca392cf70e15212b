package clinic

import (
	"context"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/config"
	"github.com/magabrotheeeer/beauty-clinic/internal/services/scheduler"
)

// Имена периодических задач, они же ключи контрольных точек.
const (
	JobExpirePendingPayments = "expire-pending-payments"
	JobAutoComplete          = "auto-complete-appointments"
	JobNotifyExpiring        = "notify-expiring-vouchers"
	JobExpireFreeMonths      = "expire-free-months"
)

type runFunc func(ctx context.Context) (int, error)

// jobRunners методы сервисов, которые выполняются по расписанию.
type jobRunners struct {
	ExpirePendingPayments runFunc
	AutoComplete          runFunc
	NotifyExpiring        runFunc
	ExpireFreeMonths      runFunc
}

// buildJobs возвращает задачи с учётом переключателей конфигурации.
func buildJobs(cfg config.Scheduler, loc *time.Location, r jobRunners) []scheduler.Job {
	if cfg.SchedulerDisabled {
		return nil
	}
	jobs := make([]scheduler.Job, 0, 4)
	if !cfg.DisableExpirePendingPayments {
		jobs = append(jobs, scheduler.Job{
			Name:     JobExpirePendingPayments,
			Schedule: scheduler.Every(5 * time.Minute),
			Run:      r.ExpirePendingPayments,
		})
	}
	jobs = append(jobs,
		scheduler.Job{
			Name:     JobAutoComplete,
			Schedule: scheduler.DailyAt{Hour: 0, Loc: loc},
			Run:      r.AutoComplete,
		},
		scheduler.Job{
			Name:     JobNotifyExpiring,
			Schedule: scheduler.DailyAt{Hour: 10, Loc: loc},
			Run:      r.NotifyExpiring,
		},
		scheduler.Job{
			Name:     JobExpireFreeMonths,
			Schedule: scheduler.Every(time.Hour),
			Run:      r.ExpireFreeMonths,
		},
	)
	return jobs
}
