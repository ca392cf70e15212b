package models

// PaymentMethod сохранённая карта клиента в платёжном шлюзе.
type PaymentMethod struct {
	ID          string `json:"id"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	ExpMonth    int64  `json:"exp_month"`
	ExpYear     int64  `json:"exp_year"`
	Fingerprint string `json:"-"`
}

// Revenue выручка за месяц в минимальных единицах валюты.
type Revenue struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Invoices int64  `json:"invoices"`
	Payments int64  `json:"payments"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// CheckoutSession ссылка на страницу оплаты.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutKind назначение платёжной сессии, передаётся в metadata.
type CheckoutKind string

const (
	CheckoutSubscription CheckoutKind = "subscription"
	CheckoutAppointment  CheckoutKind = "appointment"
)

// AppointmentCheckoutRequest тело запроса оплаты записи.
type AppointmentCheckoutRequest struct {
	AppointmentID int64 `json:"appointment_id" validate:"required,gt=0"`
}

// PortalSession ссылка на личный кабинет платёжного шлюза.
type PortalSession struct {
	URL string `json:"url"`
}
