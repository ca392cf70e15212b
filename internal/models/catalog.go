package models

import "time"

// Service процедура, которую можно забронировать.
type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Duration длительность процедуры.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// ServiceRequest тело запроса создания или обновления процедуры.
type ServiceRequest struct {
	Name            string `json:"name" validate:"required,max=128"`
	Category        string `json:"category" validate:"required,max=64"`
	Description     string `json:"description" validate:"max=2000"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0,lte=600"`
	Price           int64  `json:"price" validate:"gte=0"`
	Active          *bool  `json:"active,omitempty"`
}

// Plan тарифный план подписки.
type Plan struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Tier                  string    `json:"tier"`
	Price                 int64     `json:"price"`
	MaxTreatmentsPerMonth int       `json:"max_treatments_per_month"`
	MinCommitmentMonths   int       `json:"min_commitment_months"`
	Active                bool      `json:"active"`
	StripeProductID       *string   `json:"-"`
	StripePriceID         *string   `json:"-"`
	ServiceIDs            []int64   `json:"service_ids"`
	CreatedAt             time.Time `json:"created_at"`
}

// PlanRequest тело запроса создания или обновления плана.
type PlanRequest struct {
	Name                  string  `json:"name" validate:"required,max=128"`
	Tier                  string  `json:"tier" validate:"required,max=64"`
	Price                 int64   `json:"price" validate:"gte=0"`
	MaxTreatmentsPerMonth int     `json:"max_treatments_per_month" validate:"gte=0"`
	MinCommitmentMonths   int     `json:"min_commitment_months" validate:"gte=0,lte=36"`
	Active                *bool   `json:"active,omitempty"`
	ServiceIDs            []int64 `json:"service_ids" validate:"dive,gt=0"`
}

// SystemConfig глобальные настройки клиники.
type SystemConfig struct {
	MinCancellationHours              int `json:"min_cancellation_hours"`
	MinRescheduleHours                int `json:"min_reschedule_hours"`
	SlotDurationMinutes               int `json:"slot_duration_minutes"`
	MaxSubscriptionAppointmentsPerDay int `json:"max_subscription_appointments_per_day"`
	PendingPaymentExpiryMinutes       int `json:"pending_payment_expiry_minutes"`
}

// DefaultSystemConfig значения, которые действуют до первой настройки.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		MinCancellationHours:              24,
		MinRescheduleHours:                24,
		SlotDurationMinutes:               60,
		MaxSubscriptionAppointmentsPerDay: 3,
		PendingPaymentExpiryMinutes:       15,
	}
}

// SystemConfigRequest частичное обновление настроек.
type SystemConfigRequest struct {
	MinCancellationHours              *int `json:"min_cancellation_hours,omitempty" validate:"omitempty,gte=0,lte=720"`
	MinRescheduleHours                *int `json:"min_reschedule_hours,omitempty" validate:"omitempty,gte=0,lte=720"`
	SlotDurationMinutes               *int `json:"slot_duration_minutes,omitempty" validate:"omitempty,gte=5,lte=480"`
	MaxSubscriptionAppointmentsPerDay *int `json:"max_subscription_appointments_per_day,omitempty" validate:"omitempty,gte=1,lte=50"`
	PendingPaymentExpiryMinutes       *int `json:"pending_payment_expiry_minutes,omitempty" validate:"omitempty,gte=1,lte=1440"`
}

// Apply накладывает заданные поля запроса на cfg.
func (r SystemConfigRequest) Apply(cfg SystemConfig) SystemConfig {
	if r.MinCancellationHours != nil {
		cfg.MinCancellationHours = *r.MinCancellationHours
	}
	if r.MinRescheduleHours != nil {
		cfg.MinRescheduleHours = *r.MinRescheduleHours
	}
	if r.SlotDurationMinutes != nil {
		cfg.SlotDurationMinutes = *r.SlotDurationMinutes
	}
	if r.MaxSubscriptionAppointmentsPerDay != nil {
		cfg.MaxSubscriptionAppointmentsPerDay = *r.MaxSubscriptionAppointmentsPerDay
	}
	if r.PendingPaymentExpiryMinutes != nil {
		cfg.PendingPaymentExpiryMinutes = *r.PendingPaymentExpiryMinutes
	}
	return cfg
}
