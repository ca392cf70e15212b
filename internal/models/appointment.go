package models

import (
	"fmt"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
)

// AppointmentStatus статус записи.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCanceled  AppointmentStatus = "canceled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// AppointmentStatuses все статусы записи.
func AppointmentStatuses() []AppointmentStatus {
	return []AppointmentStatus{AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCanceled, AppointmentNoShow}
}

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCompleted, AppointmentCanceled, AppointmentNoShow},
	AppointmentConfirmed: {AppointmentPending, AppointmentCompleted, AppointmentCanceled, AppointmentNoShow},
	AppointmentCompleted: nil,
	AppointmentCanceled:  nil,
	AppointmentNoShow:    nil,
}

// Valid сообщает, является ли статус известным.
func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentTransitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed:
		return false
	case AppointmentCompleted, AppointmentCanceled, AppointmentNoShow:
		return true
	default:
		panic(fmt.Sprintf("models: unknown appointment status %q", string(s)))
	}
}

// CanTransition сообщает, разрешён ли переход s -> to.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition возвращает ошибку валидации, если переход запрещён.
func (s AppointmentStatus) Transition(to AppointmentStatus) error {
	if !s.CanTransition(to) {
		return apperr.Validation("appointment cannot move from %s to %s", s, to)
	}
	return nil
}

// Reschedulable сообщает, можно ли перенести запись в этом статусе.
func (s AppointmentStatus) Reschedulable() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

// Origin способ оплаты записи.
type Origin string

const (
	OriginSubscription Origin = "subscription"
	OriginSingle       Origin = "single"
	OriginVoucher      Origin = "voucher"
	OriginAdmin        Origin = "admin"
)

// Origins все источники записи.
func Origins() []Origin {
	return []Origin{OriginSubscription, OriginSingle, OriginVoucher, OriginAdmin}
}

// Valid сообщает, является ли источник известным.
func (o Origin) Valid() bool {
	switch o {
	case OriginSubscription, OriginSingle, OriginVoucher, OriginAdmin:
		return true
	}
	return false
}

// PaymentStatus статус оплаты записи.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentRefunded    PaymentStatus = "refunded"
)

// PaymentStatuses все статусы оплаты.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentNotRequired, PaymentPending, PaymentPaid, PaymentRefunded}
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentNotRequired: {PaymentPaid},
	PaymentPending:     {PaymentPaid},
	PaymentPaid:        {PaymentRefunded},
	PaymentRefunded:    nil,
}

// Valid сообщает, является ли статус известным.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// CanTransition сообщает, разрешён ли переход s -> to.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CancelActor инициатор отмены.
type CancelActor string

const (
	CanceledByClient CancelActor = "client"
	CanceledByAdmin  CancelActor = "admin"
	CanceledBySystem CancelActor = "system"
)

// Appointment запись клиента на процедуру.
type Appointment struct {
	ID                 int64             `json:"id"`
	UserUID            string            `json:"user_uid"`
	ServiceID          int64             `json:"service_id"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            time.Time         `json:"end_time"`
	Status             AppointmentStatus `json:"status"`
	Origin             Origin            `json:"origin"`
	PaymentStatus      PaymentStatus     `json:"payment_status"`
	PaymentAmount      int64             `json:"payment_amount"`
	VoucherID          *int64            `json:"voucher_id,omitempty"`
	ConfirmedByAdmin   bool              `json:"confirmed_by_admin"`
	Notes              string            `json:"notes"`
	CanceledBy         *CancelActor      `json:"canceled_by,omitempty"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NoticeHours сколько часов осталось до начала записи относительно now.
func (a Appointment) NoticeHours(now time.Time) float64 {
	return a.StartTime.Sub(now).Hours()
}

// AppointmentFilter параметры выборки записей. Nil поля не фильтруют.
type AppointmentFilter struct {
	UserUID *string
	Status  *AppointmentStatus
	Origin  *Origin
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// CreateAppointmentRequest тело запроса создания записи.
type CreateAppointmentRequest struct {
	ServiceID   int64     `json:"service_id" validate:"required,gt=0"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	Origin      Origin    `json:"origin" validate:"required,oneof=subscription single voucher admin"`
	VoucherID   *int64    `json:"voucher_id,omitempty" validate:"omitempty,gt=0"`
	VoucherCode string    `json:"voucher_code,omitempty" validate:"max=64"`
	Notes       string    `json:"notes" validate:"max=2000"`
	// UserUID задаётся администратором при записи клиента.
	UserUID string `json:"user_uid,omitempty" validate:"omitempty,uuid"`
}

// CompleteAppointmentRequest тело запроса завершения записи.
type CompleteAppointmentRequest struct {
	Paid bool `json:"paid"`
}

// CancelAppointmentRequest тело запроса отмены записи.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RescheduleAppointmentRequest тело запроса переноса записи.
type RescheduleAppointmentRequest struct {
	StartTime time.Time  `json:"start_time" validate:"required"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// CancelOutcome итог отмены для ответа клиенту.
type CancelOutcome struct {
	Appointment   *Appointment `json:"appointment"`
	Refunded      bool         `json:"refunded"`
	Voucher       *Voucher     `json:"voucher,omitempty"`
	UsageRestored bool         `json:"usage_restored"`
	TreatmentLost bool         `json:"treatment_lost"`
}
