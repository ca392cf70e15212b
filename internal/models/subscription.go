package models

import (
	"fmt"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
)

// SubscriptionStatus статус подписки.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPaused   SubscriptionStatus = "paused"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// SubscriptionStatuses все статусы подписки.
func SubscriptionStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{SubscriptionActive, SubscriptionPaused, SubscriptionCanceled}
}

// Отменённая подписка не возобновляется: новая подписка создаётся заново через Upsert.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionActive:   {SubscriptionPaused, SubscriptionCanceled},
	SubscriptionPaused:   {SubscriptionActive, SubscriptionCanceled},
	SubscriptionCanceled: nil,
}

// Valid сообщает, является ли статус известным.
func (s SubscriptionStatus) Valid() bool {
	_, ok := subscriptionTransitions[s]
	return ok
}

// CanTransition сообщает, разрешён ли переход s -> to.
func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	for _, next := range subscriptionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition возвращает ошибку валидации, если переход запрещён.
func (s SubscriptionStatus) Transition(to SubscriptionStatus) error {
	if !s.CanTransition(to) {
		return apperr.Validation("subscription cannot move from %s to %s", s, to)
	}
	return nil
}

// AllowsBooking сообщает, можно ли записываться по подписке в этом статусе.
func (s SubscriptionStatus) AllowsBooking() bool {
	switch s {
	case SubscriptionActive:
		return true
	case SubscriptionPaused, SubscriptionCanceled:
		return false
	default:
		panic(fmt.Sprintf("models: unknown subscription status %q", string(s)))
	}
}

// Subscription подписка пользователя на план.
type Subscription struct {
	ID                   int64              `json:"id"`
	UserUID              string             `json:"user_uid"`
	PlanID               int64              `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	StartDate            time.Time          `json:"start_date"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	MinCommitmentEnd     time.Time          `json:"min_commitment_end"`
	StripeSubscriptionID *string            `json:"-"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// ActiveAt сообщает, действует ли подписка в момент now: статус active и конец не наступил.
func (s Subscription) ActiveAt(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}

// EntitledAt сообщает, можно ли записываться по подписке в момент now.
// Отменённая подписка действует до конца оплаченного периода.
func (s Subscription) EntitledAt(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive:
		return s.ActiveAt(now)
	case SubscriptionCanceled:
		return s.EndDate != nil && s.EndDate.After(now)
	case SubscriptionPaused:
		return false
	default:
		panic(fmt.Sprintf("models: unknown subscription status %q", string(s.Status)))
	}
}

// MonthlyUsage счётчик процедур по подписке за календарный месяц.
type MonthlyUsage struct {
	UserUID         string `json:"user_uid"`
	Month           int    `json:"month"`
	Year            int    `json:"year"`
	TotalTreatments int    `json:"total_treatments"`
}

// UsageReport использование квоты за месяц.
type UsageReport struct {
	Month     int `json:"month"`
	Year      int `json:"year"`
	Used      int `json:"used"`
	Quota     int `json:"quota"`
	Remaining int `json:"remaining"`
}

// SubscribeRequest тело запроса оформления подписки.
type SubscribeRequest struct {
	PlanID      int64  `json:"plan_id" validate:"required,gt=0"`
	VoucherCode string `json:"voucher_code,omitempty" validate:"max=64"`
}

// SubscribeResult результат оформления: ссылка на оплату или сразу активная подписка.
type SubscribeResult struct {
	CheckoutURL  string        `json:"checkout_url,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}
