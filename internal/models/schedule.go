package models

import (
	"fmt"
	"time"
)

// ClockLayout формат времени суток в шаблонах расписания.
const ClockLayout = "15:04"

// DateLayout формат даты в запросах расписания.
const DateLayout = "2006-01-02"

// ManagerSchedule недельный шаблон работы клиники на день недели.
type ManagerSchedule struct {
	Weekday   int      `json:"weekday"`
	IsOpen    bool     `json:"is_open"`
	OpenTime  string   `json:"open_time"`
	CloseTime string   `json:"close_time"`
	Slots     []string `json:"slots,omitempty"`
}

// ScheduleOverride исключение из шаблона на конкретную дату.
type ScheduleOverride struct {
	Date      time.Time `json:"date"`
	IsClosed  bool      `json:"is_closed"`
	OpenTime  *string   `json:"open_time,omitempty"`
	CloseTime *string   `json:"close_time,omitempty"`
	Slots     []string  `json:"slots,omitempty"`
	Reason    string    `json:"reason"`
}

// Slot интервал времени для записи.
type Slot struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Booked bool      `json:"booked"`
}

// ScheduleTemplateRequest тело запроса сохранения шаблона на день недели.
type ScheduleTemplateRequest struct {
	IsOpen    bool     `json:"is_open"`
	OpenTime  string   `json:"open_time" validate:"required_with=IsOpen"`
	CloseTime string   `json:"close_time" validate:"required_with=IsOpen"`
	Slots     []string `json:"slots,omitempty"`
}

// ScheduleOverrideRequest тело запроса сохранения исключения.
type ScheduleOverrideRequest struct {
	Date      string   `json:"date" validate:"required"`
	IsClosed  bool     `json:"is_closed"`
	OpenTime  *string  `json:"open_time,omitempty"`
	CloseTime *string  `json:"close_time,omitempty"`
	Slots     []string `json:"slots,omitempty"`
	Reason    string   `json:"reason" validate:"max=500"`
}

// ParseClock разбирает время суток "HH:MM" и возвращает смещение от полуночи.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ValidateClocks проверяет список времени суток "HH:MM".
func ValidateClocks(values ...string) error {
	for _, v := range values {
		if _, err := ParseClock(v); err != nil {
			return err
		}
	}
	return nil
}
