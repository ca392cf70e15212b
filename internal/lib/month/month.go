// Package month содержит арифметику календарных периодов: границы месяца и дня
// в часовом поясе клиники и границы биллинговых циклов подписки.
package month

import (
	"time"
)

// Bounds возвращает начало месяца, в который попадает t, и начало следующего месяца.
func Bounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

// DayBounds возвращает начало суток, в которые попадает t, и начало следующих суток.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// MonthYear возвращает номер месяца (1-12) и год для t в часовом поясе loc.
func MonthYear(t time.Time, loc *time.Location) (int, int) {
	t = t.In(loc)
	return int(t.Month()), t.Year()
}

// NextCycleBoundary возвращает первую границу биллингового цикла строго после now.
// Циклы отсчитываются помесячно от start.
func NextCycleBoundary(start, now time.Time) time.Time {
	if now.Before(start) {
		return start.AddDate(0, 1, 0)
	}
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if months < 1 {
		months = 1
	}
	boundary := start.AddDate(0, months, 0)
	// AddDate нормализует 31-е число, поэтому шагаем назад и вперёд по одному месяцу
	for !boundary.After(now) {
		months++
		boundary = start.AddDate(0, months, 0)
	}
	for months > 1 && start.AddDate(0, months-1, 0).After(now) {
		months--
		boundary = start.AddDate(0, months, 0)
	}
	return boundary
}

// CountMonths считает количество полных циклов подписки между start и now.
func CountMonths(start, now time.Time) int {
	if !now.After(start) {
		return 0
	}
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if now.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
