package appointment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// fakeRepo хранилище в памяти. Транзакции не откатываются.
type fakeRepo struct {
	mu sync.Mutex

	nextID       int64
	now          func() time.Time
	appointments map[int64]models.Appointment
	vouchers     map[int64]models.Voucher
	services     map[int64]models.Service
	users        map[string]models.User
	anamnesis    map[string]bool
	subs         map[string]models.Subscription
	plans        map[int64]models.Plan
	usage        map[string]int
	cfg          models.SystemConfig

	failVoucherUse bool
	txCalls        int
}

func newFakeRepo(now func() time.Time) *fakeRepo {
	return &fakeRepo{
		nextID:       100,
		now:          now,
		appointments: map[int64]models.Appointment{},
		vouchers:     map[int64]models.Voucher{},
		services:     map[int64]models.Service{},
		users:        map[string]models.User{},
		anamnesis:    map[string]bool{},
		subs:         map[string]models.Subscription{},
		plans:        map[int64]models.Plan{},
		usage:        map[string]int{},
		cfg:          models.DefaultSystemConfig(),
	}
}

func usageKey(uid string, m, y int) string { return fmt.Sprintf("%s:%d:%d", uid, m, y) }

func (r *fakeRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txCalls++
	return fn(ctx)
}

func (r *fakeRepo) CreateAppointment(_ context.Context, a models.Appointment) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) GetAppointment(_ context.Context, id int64) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment %d not found", id)
	}
	return &a, nil
}

func (r *fakeRepo) UpdateAppointment(_ context.Context, a models.Appointment) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[a.ID]; !ok {
		return nil, apperr.NotFound("appointment %d not found", a.ID)
	}
	a.UpdatedAt = r.now()
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) ListAppointments(_ context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appointments {
		if f.UserUID != nil && a.UserUID != *f.UserUID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Origin != nil && a.Origin != *f.Origin {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

func (r *fakeRepo) count(match func(a models.Appointment) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appointments {
		if a.Status != models.AppointmentCanceled && match(a) {
			n++
		}
	}
	return n
}

func (r *fakeRepo) CountUserActiveAppointments(_ context.Context, userUID string) (int, error) {
	return r.count(func(a models.Appointment) bool { return a.UserUID == userUID }), nil
}

func (r *fakeRepo) CountSubscriptionAppointmentsBetween(_ context.Context, userUID string, from, to time.Time) (int, error) {
	return r.count(func(a models.Appointment) bool {
		return a.UserUID == userUID && a.Origin == models.OriginSubscription &&
			!a.StartTime.Before(from) && a.StartTime.Before(to)
	}), nil
}

func (r *fakeRepo) CountAppointmentsAt(_ context.Context, start time.Time) (int, error) {
	return r.count(func(a models.Appointment) bool { return a.StartTime.Equal(start) }), nil
}

func (r *fakeRepo) ListStalePendingPayments(_ context.Context, createdBefore time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appointments {
		if a.Origin == models.OriginSingle && a.Status == models.AppointmentPending &&
			a.PaymentStatus == models.PaymentPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListOpenAppointmentsBetween(_ context.Context, from, to time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appointments {
		open := a.Status == models.AppointmentPending || a.Status == models.AppointmentConfirmed
		if open && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetVoucher(_ context.Context, id int64) (*models.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return nil, apperr.NotFound("voucher not found")
	}
	return &v, nil
}

func (r *fakeRepo) GetVoucherByCode(_ context.Context, code string) (*models.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vouchers {
		if v.Code == code {
			return &v, nil
		}
	}
	return nil, apperr.NotFound("voucher not found")
}

func (r *fakeRepo) VoucherReserved(_ context.Context, voucherID, exceptAppointmentID int64) (bool, error) {
	n := r.count(func(a models.Appointment) bool {
		live := a.Status == models.AppointmentPending || a.Status == models.AppointmentConfirmed
		return live && a.ID != exceptAppointmentID && a.VoucherID != nil && *a.VoucherID == voucherID
	})
	return n > 0, nil
}

func (r *fakeRepo) MarkVoucherUsed(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failVoucherUse {
		return errors.New("voucher table locked")
	}
	v, ok := r.vouchers[id]
	if !ok || v.IsUsed {
		return apperr.NotFound("voucher %d not found or already used", id)
	}
	v.IsUsed = true
	v.UsedAt = &at
	r.vouchers[id] = v
	return nil
}

func (r *fakeRepo) GetService(_ context.Context, id int64) (*models.Service, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, apperr.NotFound("service %d not found", id)
	}
	return &svc, nil
}

func (r *fakeRepo) GetUser(_ context.Context, userUID string) (*models.User, error) {
	u, ok := r.users[userUID]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (r *fakeRepo) GetAnamnesis(_ context.Context, userUID string) (*models.AnamnesisForm, error) {
	if !r.anamnesis[userUID] {
		return nil, nil
	}
	return &models.AnamnesisForm{UserUID: userUID, Consent: true}, nil
}

func (r *fakeRepo) GetSubscriptionByUser(_ context.Context, userUID string) (*models.Subscription, error) {
	sub, ok := r.subs[userUID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *fakeRepo) GetPlan(_ context.Context, id int64) (*models.Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, apperr.NotFound("plan %d not found", id)
	}
	return &p, nil
}

func (r *fakeRepo) GetMonthlyUsage(_ context.Context, userUID string, m, y int) (models.MonthlyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.MonthlyUsage{UserUID: userUID, Month: m, Year: y, TotalTreatments: r.usage[usageKey(userUID, m, y)]}, nil
}

func (r *fakeRepo) IncrementMonthlyUsage(_ context.Context, userUID string, m, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[usageKey(userUID, m, y)]++
	return nil
}

func (r *fakeRepo) DecrementMonthlyUsage(_ context.Context, userUID string, m, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := usageKey(userUID, m, y)
	if r.usage[k] > 0 {
		r.usage[k]--
	}
	return nil
}

func (r *fakeRepo) GetSystemConfig(context.Context) (models.SystemConfig, error) {
	return r.cfg, nil
}

type fakeRefunder struct {
	calls     int
	err       error
	expired   []int64
	expireErr error
}

func (f *fakeRefunder) RefundAppointmentPayment(_ context.Context, _ string, _ int64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "re_test", nil
}

func (f *fakeRefunder) ExpireAppointmentCheckouts(_ context.Context, _ string, appointmentID int64) (int, error) {
	if f.expireErr != nil {
		return 0, f.expireErr
	}
	f.expired = append(f.expired, appointmentID)
	return 1, nil
}

type compensation struct {
	userUID string
	amount  int64
	months  int
}

type fakeCompensator struct {
	now    func() time.Time
	issued []compensation
}

func (f *fakeCompensator) IssueCompensation(_ context.Context, userUID string, amount int64, months int, reason string) (*models.Voucher, error) {
	f.issued = append(f.issued, compensation{userUID: userUID, amount: amount, months: months})
	return &models.Voucher{
		ID:             int64(len(f.issued)),
		UserUID:        userUID,
		Type:           models.VoucherDiscount,
		DiscountAmount: amount,
		ExpiresAt:      f.now().AddDate(0, months, 0),
		Reason:         reason,
	}, nil
}

type sent struct {
	userUID string
	typ     models.NotificationType
}

type fakeNotifier struct {
	client []sent
	admins []models.NotificationType
}

func (f *fakeNotifier) Notify(_ context.Context, userUID string, typ models.NotificationType, _ models.Priority, _ *int64, _, _ string) {
	f.client = append(f.client, sent{userUID: userUID, typ: typ})
}

func (f *fakeNotifier) NotifyAdmins(_ context.Context, typ models.NotificationType, _ models.Priority, _ *int64, _, _ string) {
	f.admins = append(f.admins, typ)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
