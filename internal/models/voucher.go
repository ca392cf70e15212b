package models

import (
	"fmt"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
)

// VoucherType вид ваучера.
type VoucherType string

const (
	VoucherFreeTreatment VoucherType = "free_treatment"
	VoucherDiscount      VoucherType = "discount"
	VoucherFreeMonth     VoucherType = "free_month"
)

// VoucherTypes все виды ваучеров.
func VoucherTypes() []VoucherType {
	return []VoucherType{VoucherFreeTreatment, VoucherDiscount, VoucherFreeMonth}
}

// Valid сообщает, является ли вид известным.
func (t VoucherType) Valid() bool {
	switch t {
	case VoucherFreeTreatment, VoucherDiscount, VoucherFreeMonth:
		return true
	}
	return false
}

// VoucherState состояние ваучера, вычисляемое из флага использования и срока действия.
type VoucherState string

const (
	VoucherAvailable VoucherState = "available"
	VoucherUsed      VoucherState = "used"
	VoucherExpired   VoucherState = "expired"
)

// VoucherStates все состояния ваучера.
func VoucherStates() []VoucherState {
	return []VoucherState{VoucherAvailable, VoucherUsed, VoucherExpired}
}

// Ваучер, зарезервированный записью, может истечь до завершения процедуры,
// но при завершении всё равно погашается.
var voucherTransitions = map[VoucherState][]VoucherState{
	VoucherAvailable: {VoucherUsed},
	VoucherExpired:   {VoucherUsed},
	VoucherUsed:      nil,
}

// CanTransition сообщает, разрешён ли переход s -> to.
func (s VoucherState) CanTransition(to VoucherState) bool {
	for _, next := range voucherTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Voucher ваучер клиента.
type Voucher struct {
	ID              int64       `json:"id"`
	Code            string      `json:"code"`
	UserUID         string      `json:"user_uid"`
	Type            VoucherType `json:"type"`
	ServiceID       *int64      `json:"service_id,omitempty"`
	AnyService      bool        `json:"any_service"`
	PlanID          *int64      `json:"plan_id,omitempty"`
	DiscountPercent int         `json:"discount_percent"`
	DiscountAmount  int64       `json:"discount_amount"`
	IsUsed          bool        `json:"is_used"`
	UsedAt          *time.Time  `json:"used_at,omitempty"`
	ExpiresAt       time.Time   `json:"expires_at"`
	Reason          string      `json:"reason"`
	CreatedAt       time.Time   `json:"created_at"`
}

// State вычисляет состояние ваучера на момент now.
func (v Voucher) State(now time.Time) VoucherState {
	switch {
	case v.IsUsed:
		return VoucherUsed
	case !now.Before(v.ExpiresAt):
		return VoucherExpired
	default:
		return VoucherAvailable
	}
}

// CheckUsable проверяет, что ваучер не использован и не истёк.
func (v Voucher) CheckUsable(now time.Time) error {
	switch state := v.State(now); state {
	case VoucherAvailable:
		return nil
	case VoucherUsed:
		return apperr.Validation("voucher %s has already been used", v.Code)
	case VoucherExpired:
		return apperr.Validation("voucher %s has expired", v.Code)
	default:
		panic(fmt.Sprintf("models: unknown voucher state %q", string(state)))
	}
}

// CheckService проверяет, что ваучер применим к процедуре serviceID.
func (v Voucher) CheckService(serviceID int64) error {
	switch v.Type {
	case VoucherFreeTreatment:
		if v.AnyService || (v.ServiceID != nil && *v.ServiceID == serviceID) {
			return nil
		}
		return apperr.Validation("voucher %s is not valid for this service", v.Code)
	case VoucherDiscount:
		return nil
	case VoucherFreeMonth:
		return apperr.Validation("free-month voucher %s cannot be applied to an appointment", v.Code)
	default:
		panic(fmt.Sprintf("models: unknown voucher type %q", string(v.Type)))
	}
}

// PriceFor возвращает итоговую цену процедуры с учётом ваучера, не ниже нуля.
func (v Voucher) PriceFor(price int64) int64 {
	switch v.Type {
	case VoucherFreeTreatment:
		return 0
	case VoucherDiscount:
		var final int64
		if v.DiscountPercent > 0 {
			final = price - price*int64(v.DiscountPercent)/100
		} else {
			final = price - v.DiscountAmount
		}
		return max(final, 0)
	case VoucherFreeMonth:
		return price
	default:
		panic(fmt.Sprintf("models: unknown voucher type %q", string(v.Type)))
	}
}

// IssueVoucherRequest тело запроса выпуска ваучера администратором.
type IssueVoucherRequest struct {
	UserUID         string      `json:"user_uid" validate:"required,uuid"`
	Type            VoucherType `json:"type" validate:"required,oneof=free_treatment discount free_month"`
	ServiceID       *int64      `json:"service_id,omitempty" validate:"omitempty,gt=0"`
	AnyService      bool        `json:"any_service"`
	PlanID          *int64      `json:"plan_id,omitempty" validate:"omitempty,gt=0"`
	DiscountPercent int         `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  int64       `json:"discount_amount" validate:"gte=0"`
	ValidMonths     int         `json:"valid_months" validate:"gte=0,lte=36"`
	Reason          string      `json:"reason" validate:"max=500"`
}

// ValidateVoucherRequest тело запроса проверки ваучера.
type ValidateVoucherRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	ServiceID *int64 `json:"service_id,omitempty" validate:"omitempty,gt=0"`
}

// VoucherValidation результат проверки ваучера.
type VoucherValidation struct {
	Voucher    *Voucher `json:"voucher"`
	Valid      bool     `json:"valid"`
	Reason     string   `json:"reason,omitempty"`
	FinalPrice *int64   `json:"final_price,omitempty"`
}
