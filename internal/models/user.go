// Package models содержит доменные структуры клиники: пользователей, каталог услуг,
// записи, подписки, ваучеры, расписание и уведомления, а также закрытые перечисления
// статусов с таблицами допустимых переходов.
package models

import "time"

// Role роль пользователя.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid сообщает, является ли роль известной.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID              string    `json:"uid"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	FullName         string    `json:"full_name"`
	Phone            string    `json:"phone"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// AnamnesisForm анкета клиента, обязательная перед первой записью.
type AnamnesisForm struct {
	UserUID     string    `json:"user_uid"`
	Allergies   string    `json:"allergies"`
	Medications string    `json:"medications"`
	SkinType    string    `json:"skin_type"`
	Conditions  string    `json:"conditions"`
	Notes       string    `json:"notes"`
	Consent     bool      `json:"consent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor тот, кто выполняет операцию: клиент или администратор.
type Actor struct {
	UID  string
	Role Role
}

// IsAdmin сообщает, является ли актор администратором.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RegisterRequest тело запроса регистрации.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"omitempty,max=128"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

// LoginRequest тело запроса входа.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest частичное обновление профиля.
type UpdateProfileRequest struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=128"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// AnamnesisRequest тело запроса сохранения анкеты.
type AnamnesisRequest struct {
	Allergies   string `json:"allergies" validate:"max=2000"`
	Medications string `json:"medications" validate:"max=2000"`
	SkinType    string `json:"skin_type" validate:"max=64"`
	Conditions  string `json:"conditions" validate:"max=2000"`
	Notes       string `json:"notes" validate:"max=2000"`
	Consent     bool   `json:"consent"`
}
