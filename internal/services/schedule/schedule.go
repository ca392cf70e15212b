// Package schedule считает свободные слоты по недельному шаблону и исключениям на даты.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/month"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Окно записи для администратора и отступ от текущего времени.
const (
	adminOpen  = 6 * time.Hour
	adminClose = 21 * time.Hour
	adminLead  = 30 * time.Minute
)

// Repository методы хранилища расписания.
type Repository interface {
	GetWeeklyTemplate(ctx context.Context, weekday int) (*models.ManagerSchedule, error)
	ListWeeklyTemplates(ctx context.Context) ([]*models.ManagerSchedule, error)
	UpsertWeeklyTemplate(ctx context.Context, m models.ManagerSchedule) error
	GetOverride(ctx context.Context, date time.Time) (*models.ScheduleOverride, error)
	ListOverrides(ctx context.Context, from, to time.Time) ([]*models.ScheduleOverride, error)
	UpsertOverride(ctx context.Context, o models.ScheduleOverride) error
	DeleteOverride(ctx context.Context, date time.Time) error
	ListBookedStarts(ctx context.Context, from, to time.Time) ([]time.Time, error)
	GetSystemConfig(ctx context.Context) (models.SystemConfig, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

// Service сервис расписания.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService создаёт сервис. Даты интерпретируются в часовом поясе loc.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// ParseDate разбирает дату YYYY-MM-DD в часовом поясе клиники.
func (s *Service) ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(models.DateLayout, value, s.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q: expected YYYY-MM-DD", value)
	}
	return d, nil
}

// window рабочие часы дня. slots непуст, если задан явный список начала слотов.
type window struct {
	open, close time.Duration
	slots       []string
}

// dayWindow определяет, открыта ли клиника в date. Исключение на дату важнее шаблона.
func (s *Service) dayWindow(ctx context.Context, date time.Time) (*window, error) {
	override, err := s.repo.GetOverride(ctx, date)
	if err != nil {
		return nil, err
	}
	if override != nil && override.IsClosed {
		return nil, nil
	}
	tpl, err := s.repo.GetWeeklyTemplate(ctx, int(date.Weekday()))
	if err != nil {
		return nil, err
	}

	var w window
	hasHours := false
	if tpl != nil && tpl.IsOpen {
		if w.open, err = models.ParseClock(tpl.OpenTime); err != nil {
			return nil, err
		}
		if w.close, err = models.ParseClock(tpl.CloseTime); err != nil {
			return nil, err
		}
		w.slots = tpl.Slots
		hasHours = true
	}
	if override != nil {
		custom := false
		if override.OpenTime != nil && override.CloseTime != nil {
			if w.open, err = models.ParseClock(*override.OpenTime); err != nil {
				return nil, err
			}
			if w.close, err = models.ParseClock(*override.CloseTime); err != nil {
				return nil, err
			}
			w.slots = nil
			hasHours = true
			custom = true
		}
		if len(override.Slots) > 0 {
			w.slots = override.Slots
			custom = true
		}
		if custom && !hasHours {
			// явные слоты без часов: окно до конца суток
			w.open, w.close = 0, 24*time.Hour
			hasHours = true
		}
	}
	if !hasHours {
		return nil, nil
	}
	return &w, nil
}

// closedAllDay сообщает о закрытии на весь день: исключение closed или выходной по шаблону
// без исключения с часами работы.
func (s *Service) closedAllDay(ctx context.Context, date time.Time) (bool, error) {
	w, err := s.dayWindow(ctx, date)
	if err != nil {
		return false, err
	}
	return w == nil, nil
}

func (s *Service) booked(ctx context.Context, date time.Time) (map[int64]struct{}, error) {
	from, to := month.DayBounds(date, s.loc)
	starts, err := s.repo.ListBookedStarts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(starts))
	for _, st := range starts {
		set[st.Unix()] = struct{}{}
	}
	return set, nil
}

func generate(day time.Time, open, closeAt, step time.Duration) []time.Time {
	var starts []time.Time
	for off := open; off+step <= closeAt; off += step {
		starts = append(starts, wallClock(day, off))
	}
	return starts
}

// wallClock возвращает момент, когда часы клиники в день day показывают off от полуночи.
// В дни перехода на летнее время это не то же самое, что day.Add(off).
func wallClock(day time.Time, off time.Duration) time.Time {
	h := int(off / time.Hour)
	m := int(off % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// Availability возвращает слоты на дату. При serviceID отбрасываются слоты,
// в которые процедура не успевает закончиться до закрытия.
func (s *Service) Availability(ctx context.Context, date time.Time, serviceID *int64) ([]models.Slot, error) {
	const op = "schedule.Availability"
	day, _ := month.DayBounds(date, s.loc)

	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	step := time.Duration(cfg.SlotDurationMinutes) * time.Minute
	if step <= 0 {
		step = time.Hour
	}

	var need time.Duration
	if serviceID != nil {
		svc, err := s.repo.GetService(ctx, *serviceID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		need = svc.Duration()
	}

	w, err := s.dayWindow(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if w == nil {
		return []models.Slot{}, nil
	}

	var starts []time.Time
	if len(w.slots) > 0 {
		for _, c := range w.slots {
			off, err := models.ParseClock(c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if off < w.open || off >= w.close {
				continue
			}
			starts = append(starts, wallClock(day, off))
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	} else {
		starts = generate(day, w.open, w.close, step)
	}

	booked, err := s.booked(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	closeAt := wallClock(day, w.close)
	slots := make([]models.Slot, 0, len(starts))
	for _, st := range starts {
		if need > 0 && st.Add(need).After(closeAt) {
			continue
		}
		_, isBooked := booked[st.Unix()]
		slots = append(slots, models.Slot{Start: st, End: st.Add(step), Booked: isBooked})
	}
	return slots, nil
}

// AdminAvailability возвращает слоты расширенного окна 06:00-21:00 без учёта часов шаблона.
// Дни полного закрытия остаются пустыми, на текущий день скрываются слоты ближе 30 минут.
func (s *Service) AdminAvailability(ctx context.Context, date time.Time) ([]models.Slot, error) {
	const op = "schedule.AdminAvailability"
	day, _ := month.DayBounds(date, s.loc)

	closed, err := s.closedAllDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if closed {
		return []models.Slot{}, nil
	}
	cfg, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	step := time.Duration(cfg.SlotDurationMinutes) * time.Minute
	if step <= 0 {
		step = time.Hour
	}
	booked, err := s.booked(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().In(s.loc)
	today, _ := month.DayBounds(now, s.loc)
	cutoff := now.Add(adminLead)

	slots := make([]models.Slot, 0)
	for _, st := range generate(day, adminOpen, adminClose, step) {
		if day.Equal(today) && st.Before(cutoff) {
			continue
		}
		_, isBooked := booked[st.Unix()]
		slots = append(slots, models.Slot{Start: st, End: st.Add(step), Booked: isBooked})
	}
	return slots, nil
}

// ListTemplates возвращает недельный шаблон.
func (s *Service) ListTemplates(ctx context.Context) ([]*models.ManagerSchedule, error) {
	const op = "schedule.ListTemplates"
	list, err := s.repo.ListWeeklyTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// SaveTemplate сохраняет шаблон на день недели (0 - воскресенье).
func (s *Service) SaveTemplate(ctx context.Context, weekday int, req models.ScheduleTemplateRequest) (*models.ManagerSchedule, error) {
	const op = "schedule.SaveTemplate"
	if weekday < 0 || weekday > 6 {
		return nil, apperr.Validation("weekday must be between 0 and 6")
	}
	m := models.ManagerSchedule{
		Weekday:   weekday,
		IsOpen:    req.IsOpen,
		OpenTime:  req.OpenTime,
		CloseTime: req.CloseTime,
		Slots:     req.Slots,
	}
	if m.IsOpen {
		if err := checkHours(m.OpenTime, m.CloseTime); err != nil {
			return nil, err
		}
	} else {
		m.OpenTime, m.CloseTime, m.Slots = "00:00", "00:00", nil
	}
	if err := models.ValidateClocks(m.Slots...); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := s.repo.UpsertWeeklyTemplate(ctx, m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &m, nil
}

func checkHours(openTime, closeTime string) error {
	open, err := models.ParseClock(openTime)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	closeAt, err := models.ParseClock(closeTime)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if open >= closeAt {
		return apperr.Validation("open_time must be before close_time")
	}
	return nil
}

// ListOverrides возвращает исключения в интервале дат включительно.
func (s *Service) ListOverrides(ctx context.Context, from, to time.Time) ([]*models.ScheduleOverride, error) {
	const op = "schedule.ListOverrides"
	if to.Before(from) {
		return nil, apperr.Validation("to must not be before from")
	}
	list, err := s.repo.ListOverrides(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// SaveOverride сохраняет исключение на дату.
func (s *Service) SaveOverride(ctx context.Context, req models.ScheduleOverrideRequest) (*models.ScheduleOverride, error) {
	const op = "schedule.SaveOverride"
	date, err := s.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	o := models.ScheduleOverride{
		Date:     date,
		IsClosed: req.IsClosed,
		Reason:   req.Reason,
	}
	if !req.IsClosed {
		if (req.OpenTime == nil) != (req.CloseTime == nil) {
			return nil, apperr.Validation("open_time and close_time must be set together")
		}
		if req.OpenTime != nil {
			if err := checkHours(*req.OpenTime, *req.CloseTime); err != nil {
				return nil, err
			}
		}
		if err := models.ValidateClocks(req.Slots...); err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		o.OpenTime, o.CloseTime, o.Slots = req.OpenTime, req.CloseTime, req.Slots
	}
	if err := s.repo.UpsertOverride(ctx, o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &o, nil
}

// DeleteOverride удаляет исключение на дату.
func (s *Service) DeleteOverride(ctx context.Context, date time.Time) error {
	const op = "schedule.DeleteOverride"
	if err := s.repo.DeleteOverride(ctx, date); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
