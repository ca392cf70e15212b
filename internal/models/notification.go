package models

import "time"

// Priority приоритет уведомления.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// NotificationType тип уведомления.
type NotificationType string

const (
	NotifyAppointmentCreated     NotificationType = "appointment_created"
	NotifyAppointmentConfirmed   NotificationType = "appointment_confirmed"
	NotifyAppointmentCanceled    NotificationType = "appointment_canceled"
	NotifyAppointmentRescheduled NotificationType = "appointment_rescheduled"
	NotifyAppointmentCompleted   NotificationType = "appointment_completed"
	NotifyRefundIssued           NotificationType = "refund_issued"
	NotifyVoucherIssued          NotificationType = "voucher_issued"
	NotifyVoucherExpiring        NotificationType = "voucher_expiring"
	NotifyPaymentReceived        NotificationType = "payment_received"
	NotifyPaymentFailed          NotificationType = "payment_failed"
	NotifySubscriptionActivated  NotificationType = "subscription_activated"
	NotifySubscriptionCanceled   NotificationType = "subscription_canceled"
	NotifySubscriptionExpired    NotificationType = "subscription_expired"
)

// Notification уведомление в приложении. UserUID == nil означает уведомление администраторам.
type Notification struct {
	ID            int64            `json:"id"`
	UserUID       *string          `json:"user_uid,omitempty"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Priority      Priority         `json:"priority"`
	IsRead        bool             `json:"is_read"`
	AppointmentID *int64           `json:"appointment_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NotificationMessage сообщение в брокере для отправки письма.
type NotificationMessage struct {
	NotificationID int64            `json:"notification_id"`
	Type           NotificationType `json:"type"`
	Email          string           `json:"email"`
	Username       string           `json:"username"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Priority       Priority         `json:"priority"`
}
