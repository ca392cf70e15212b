package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

func TestService_Cancel_Subscription(t *testing.T) {
	ctx := context.Background()
	march := usageKey(clientUID, 3, 2025)

	tests := []struct {
		name      string
		actor     models.Actor
		start     time.Time
		usage     int
		wantUsage int
		restored  bool
		lost      bool
	}{
		{
			name:      "клиент отменяет заранее: квота возвращается",
			actor:     client,
			start:     date(time.March, 15, 10),
			usage:     2,
			wantUsage: 1,
			restored:  true,
		},
		{
			name:      "клиент отменяет поздно: процедура сгорает",
			actor:     client,
			start:     fixedNow.Add(5 * time.Hour),
			usage:     2,
			wantUsage: 2,
			lost:      true,
		},
		{
			name:      "ровно за минимальный срок считается заранее",
			actor:     client,
			start:     fixedNow.Add(24 * time.Hour),
			usage:     1,
			wantUsage: 0,
			restored:  true,
		},
		{
			name:      "администратор отменяет поздно: квота возвращается",
			actor:     admin,
			start:     fixedNow.Add(time.Hour),
			usage:     2,
			wantUsage: 1,
			restored:  true,
		},
		{
			name:      "счётчик не уходит ниже нуля",
			actor:     client,
			start:     date(time.March, 15, 10),
			usage:     0,
			wantUsage: 0,
			restored:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.usage[march] = tt.usage
			a := f.seed(models.Appointment{StartTime: tt.start, Origin: models.OriginSubscription})

			out, err := f.svc.Cancel(ctx, tt.actor, a.ID, "заболела")
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsage, f.repo.usage[march])
			assert.Equal(t, tt.restored, out.UsageRestored)
			assert.Equal(t, tt.lost, out.TreatmentLost)

			stored := f.stored(a.ID)
			assert.Equal(t, models.AppointmentCanceled, stored.Status)
			require.NotNil(t, stored.CanceledBy)
			require.NotNil(t, stored.CanceledAt)
			assert.Equal(t, fixedNow, *stored.CanceledAt)
			assert.Equal(t, "заболела", stored.CancellationReason)
			assert.Empty(t, f.comp.issued)
		})
	}
}

func TestService_Cancel_PaidSingle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		actor        models.Actor
		start        time.Time
		setup        func(f *fixture)
		wantRefunded bool
		wantCalls    int
		wantMonths   int
		wantPayment  models.PaymentStatus
	}{
		{
			name:         "заранее: деньги возвращаются",
			actor:        client,
			start:        date(time.March, 15, 10),
			wantRefunded: true,
			wantCalls:    1,
			wantPayment:  models.PaymentRefunded,
		},
		{
			name:  "заранее: платёж не найден, выдаётся ваучер на 6 месяцев",
			actor: client,
			start: date(time.March, 15, 10),
			setup: func(f *fixture) {
				f.refunder.err = apperr.NotFound("no succeeded payment for appointment")
			},
			wantCalls:   1,
			wantMonths:  6,
			wantPayment: models.PaymentPaid,
		},
		{
			name:  "заранее: ошибка шлюза, выдаётся ваучер на 6 месяцев",
			actor: client,
			start: date(time.March, 15, 10),
			setup: func(f *fixture) {
				f.refunder.err = apperr.External("payment gateway request failed", nil)
			},
			wantCalls:   1,
			wantMonths:  6,
			wantPayment: models.PaymentPaid,
		},
		{
			name:  "заранее: у клиента нет покупателя в шлюзе",
			actor: client,
			start: date(time.March, 15, 10),
			setup: func(f *fixture) {
				u := f.repo.users[clientUID]
				u.StripeCustomerID = nil
				f.repo.users[clientUID] = u
			},
			wantCalls:   0,
			wantMonths:  6,
			wantPayment: models.PaymentPaid,
		},
		{
			name:        "поздно: без возврата, ваучер на 3 месяца",
			actor:       client,
			start:       fixedNow.Add(3 * time.Hour),
			wantCalls:   0,
			wantMonths:  3,
			wantPayment: models.PaymentPaid,
		},
		{
			name:         "администратор отменяет поздно: деньги возвращаются",
			actor:        admin,
			start:        fixedNow.Add(3 * time.Hour),
			wantRefunded: true,
			wantCalls:    1,
			wantPayment:  models.PaymentRefunded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			a := f.seed(models.Appointment{StartTime: tt.start, Origin: models.OriginSingle,
				PaymentStatus: models.PaymentPaid, PaymentAmount: 5000})

			out, err := f.svc.Cancel(ctx, tt.actor, a.ID, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefunded, out.Refunded)
			assert.Equal(t, tt.wantCalls, f.refunder.calls)
			assert.Equal(t, tt.wantPayment, f.stored(a.ID).PaymentStatus)
			assert.Equal(t, models.AppointmentCanceled, f.stored(a.ID).Status)

			if tt.wantMonths == 0 {
				assert.Empty(t, f.comp.issued)
				assert.Nil(t, out.Voucher)
				return
			}
			require.Len(t, f.comp.issued, 1)
			assert.Equal(t, compensation{userUID: clientUID, amount: 5000, months: tt.wantMonths}, f.comp.issued[0])
			require.NotNil(t, out.Voucher)
			assert.Equal(t, fixedNow.AddDate(0, tt.wantMonths, 0), out.Voucher.ExpiresAt)
		})
	}
}

func TestService_Cancel_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("неоплаченная разовая запись отменяется без компенсации", func(t *testing.T) {
		f := newFixture(t)
		a := f.seed(models.Appointment{StartTime: fixedNow.Add(time.Hour), Origin: models.OriginSingle,
			PaymentStatus: models.PaymentPending, PaymentAmount: 5000})

		out, err := f.svc.Cancel(ctx, client, a.ID, "")
		require.NoError(t, err)
		assert.False(t, out.Refunded)
		assert.Nil(t, out.Voucher)
		assert.Zero(t, f.refunder.calls)
	})

	t.Run("отмена записи по ваучеру не погашает ваучер", func(t *testing.T) {
		f := newFixture(t)
		f.repo.vouchers[1] = models.Voucher{ID: 1, UserUID: clientUID, Type: models.VoucherFreeTreatment, AnyService: true,
			ExpiresAt: fixedNow.AddDate(0, 1, 0)}
		a := f.seed(models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginVoucher, VoucherID: i64(1)})

		_, err := f.svc.Cancel(ctx, client, a.ID, "")
		require.NoError(t, err)
		assert.False(t, f.repo.vouchers[1].IsUsed)
		reserved, _ := f.repo.VoucherReserved(ctx, 1, 0)
		assert.False(t, reserved)
	})

	t.Run("клиент не может отменить чужую запись", func(t *testing.T) {
		f := newFixture(t)
		a := f.seed(models.Appointment{UserUID: otherUID, StartTime: date(time.March, 15, 10), Origin: models.OriginSingle})

		_, err := f.svc.Cancel(ctx, client, a.ID, "")
		assert.True(t, apperr.IsNotFound(err))
		assert.Equal(t, models.AppointmentPending, f.stored(a.ID).Status)
	})

	t.Run("повторная отмена", func(t *testing.T) {
		f := newFixture(t)
		a := f.seed(models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
			Status: models.AppointmentCanceled})

		_, err := f.svc.Cancel(ctx, client, a.ID, "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("уведомляется другая сторона", func(t *testing.T) {
		f := newFixture(t)
		a := f.seed(models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle})
		b := f.seed(models.Appointment{StartTime: date(time.March, 16, 10), Origin: models.OriginSingle})

		_, err := f.svc.Cancel(ctx, client, a.ID, "")
		require.NoError(t, err)
		assert.Equal(t, []models.NotificationType{models.NotifyAppointmentCanceled}, f.notifier.admins)
		assert.Empty(t, f.notifier.client)

		_, err = f.svc.Cancel(ctx, admin, b.ID, "мастер заболел")
		require.NoError(t, err)
		require.Len(t, f.notifier.client, 1)
		assert.Equal(t, sent{userUID: clientUID, typ: models.NotifyAppointmentCanceled}, f.notifier.client[0])
		assert.Equal(t, models.CanceledByAdmin, *f.stored(b.ID).CanceledBy)
	})
}

func TestService_Reschedule(t *testing.T) {
	ctx := context.Background()
	newStart := date(time.March, 25, 15)

	tests := []struct {
		name     string
		actor    models.Actor
		current  models.Appointment
		req      models.RescheduleAppointmentRequest
		wantErr  bool
		wantEnd  time.Time
		wantKind apperr.Kind
	}{
		{
			name:  "перенос заранее сбрасывает подтверждение",
			actor: client,
			current: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				Status: models.AppointmentConfirmed, ConfirmedByAdmin: true},
			req:     models.RescheduleAppointmentRequest{StartTime: newStart},
			wantEnd: newStart.Add(time.Hour),
		},
		{
			name:    "явное время окончания",
			actor:   client,
			current: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle},
			req: models.RescheduleAppointmentRequest{StartTime: newStart,
				EndTime: func() *time.Time { e := newStart.Add(2 * time.Hour); return &e }()},
			wantEnd: newStart.Add(2 * time.Hour),
		},
		{
			name:     "слишком поздно для клиента",
			actor:    client,
			current:  models.Appointment{StartTime: fixedNow.Add(23 * time.Hour), Origin: models.OriginSingle},
			req:      models.RescheduleAppointmentRequest{StartTime: newStart},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:  "администратор переносит в любой момент",
			actor: admin,
			current: models.Appointment{StartTime: fixedNow.Add(time.Hour), Origin: models.OriginSingle,
				Status: models.AppointmentConfirmed, ConfirmedByAdmin: true},
			req:     models.RescheduleAppointmentRequest{StartTime: newStart},
			wantEnd: newStart.Add(time.Hour),
		},
		{
			name:     "завершённая запись не переносится",
			actor:    admin,
			current:  models.Appointment{StartTime: date(time.March, 9, 10), Origin: models.OriginSingle, Status: models.AppointmentCompleted},
			req:      models.RescheduleAppointmentRequest{StartTime: newStart},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:    "окончание раньше начала",
			actor:   client,
			current: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle},
			req: models.RescheduleAppointmentRequest{StartTime: newStart,
				EndTime: func() *time.Time { e := newStart.Add(-time.Hour); return &e }()},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "перенос в прошлое",
			actor:    client,
			current:  models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle},
			req:      models.RescheduleAppointmentRequest{StartTime: fixedNow.Add(-time.Hour)},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.seed(tt.current)

			got, err := f.svc.Reschedule(ctx, tt.actor, a.ID, tt.req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				assert.Equal(t, a.StartTime, f.stored(a.ID).StartTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.req.StartTime, got.StartTime)
			assert.Equal(t, tt.wantEnd, got.EndTime)
			assert.Equal(t, models.AppointmentPending, got.Status)
			assert.False(t, got.ConfirmedByAdmin)
		})
	}
}

func TestService_Reschedule_MovesUsageBetweenMonths(t *testing.T) {
	ctx := context.Background()
	march, april := usageKey(clientUID, 3, 2025), usageKey(clientUID, 4, 2025)

	t.Run("квота переезжает в новый месяц", func(t *testing.T) {
		f := newFixture(t)
		f.repo.usage[march] = 1
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSubscription})

		_, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: date(time.April, 3, 10)})
		require.NoError(t, err)
		assert.Equal(t, 0, f.repo.usage[march])
		assert.Equal(t, 1, f.repo.usage[april])
	})

	t.Run("в новом месяце квота исчерпана", func(t *testing.T) {
		f := newFixture(t)
		f.repo.usage[march] = 1
		f.repo.usage[april] = 4
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSubscription})

		_, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: date(time.April, 3, 10)})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Equal(t, 1, f.repo.usage[march])
		assert.Equal(t, 4, f.repo.usage[april])
	})

	t.Run("перенос внутри месяца не трогает счётчик", func(t *testing.T) {
		f := newFixture(t)
		f.repo.usage[march] = 1
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSubscription})

		_, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: date(time.March, 27, 10)})
		require.NoError(t, err)
		assert.Equal(t, 1, f.repo.usage[march])
	})
}

func TestService_Reschedule_DailySubscriptionCap(t *testing.T) {
	ctx := context.Background()
	target := date(time.March, 25, 10)

	seedDay := func(f *fixture, n int) {
		for i := 0; i < n; i++ {
			f.seed(models.Appointment{StartTime: target.Add(time.Duration(i+1) * time.Hour), Origin: models.OriginSubscription})
		}
	}

	t.Run("в новом дне лимит исчерпан", func(t *testing.T) {
		f := newFixture(t)
		f.repo.cfg.MaxSubscriptionAppointmentsPerDay = 2
		seedDay(f, 2)
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSubscription})

		_, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: target})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Equal(t, date(time.March, 20, 10), f.stored(a.ID).StartTime)
	})

	t.Run("в новом дне есть место", func(t *testing.T) {
		f := newFixture(t)
		f.repo.cfg.MaxSubscriptionAppointmentsPerDay = 2
		seedDay(f, 1)
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSubscription})

		got, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: target})
		require.NoError(t, err)
		assert.Equal(t, target, got.StartTime)
	})

	t.Run("перенос внутри дня не считает саму запись", func(t *testing.T) {
		f := newFixture(t)
		f.repo.cfg.MaxSubscriptionAppointmentsPerDay = 2
		seedDay(f, 1)
		a := f.seed(models.Appointment{StartTime: target.Add(-2 * time.Hour), Origin: models.OriginSubscription})

		got, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: target})
		require.NoError(t, err)
		assert.Equal(t, target, got.StartTime)
	})

	t.Run("разовые записи лимит не ограничивает", func(t *testing.T) {
		f := newFixture(t)
		f.repo.cfg.MaxSubscriptionAppointmentsPerDay = 1
		seedDay(f, 1)
		a := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSingle})

		_, err := f.svc.Reschedule(ctx, client, a.ID, models.RescheduleAppointmentRequest{StartTime: target})
		require.NoError(t, err)
	})
}

func TestService_ExpirePendingPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := f.seed(models.Appointment{StartTime: date(time.March, 20, 10), Origin: models.OriginSingle,
		PaymentStatus: models.PaymentPending, PaymentAmount: 5000})
	fresh := f.seed(models.Appointment{StartTime: date(time.March, 20, 11), Origin: models.OriginSingle,
		PaymentStatus: models.PaymentPending, PaymentAmount: 5000})
	paid := f.seed(models.Appointment{StartTime: date(time.March, 20, 12), Origin: models.OriginSingle,
		PaymentStatus: models.PaymentPaid, PaymentAmount: 5000})

	old := f.repo.appointments[stale.ID]
	old.CreatedAt = fixedNow.Add(-20 * time.Minute)
	f.repo.appointments[stale.ID] = old
	old = f.repo.appointments[paid.ID]
	old.CreatedAt = fixedNow.Add(-time.Hour)
	f.repo.appointments[paid.ID] = old

	n, err := f.svc.ExpirePendingPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.stored(stale.ID)
	assert.Equal(t, models.AppointmentCanceled, got.Status)
	require.NotNil(t, got.CanceledBy)
	assert.Equal(t, models.CanceledBySystem, *got.CanceledBy)
	assert.Equal(t, "payment expired", got.CancellationReason)
	assert.Equal(t, models.AppointmentPending, f.stored(fresh.ID).Status)
	assert.Equal(t, models.AppointmentPending, f.stored(paid.ID).Status)
	assert.Equal(t, []int64{stale.ID}, f.refunder.expired, "открытая страница оплаты закрывается")
}

func TestService_Cancel_ExpiresOpenCheckout(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		appointment models.Appointment
		expireErr   error
		wantExpired bool
	}{
		{
			name: "неоплаченная разовая запись",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				PaymentStatus: models.PaymentPending, PaymentAmount: 5000},
			wantExpired: true,
		},
		{
			name: "запись по ваучеру с доплатой",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginVoucher,
				PaymentStatus: models.PaymentPending, PaymentAmount: 2000},
			wantExpired: true,
		},
		{
			name: "запись по подписке без оплаты",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSubscription,
				PaymentStatus: models.PaymentNotRequired},
		},
		{
			name: "ошибка шлюза не мешает отмене",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				PaymentStatus: models.PaymentPending, PaymentAmount: 5000},
			expireErr: apperr.External("payment gateway request failed", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.refunder.expireErr = tt.expireErr
			a := f.seed(tt.appointment)

			_, err := f.svc.Cancel(ctx, client, a.ID, "")
			require.NoError(t, err)
			assert.Equal(t, models.AppointmentCanceled, f.stored(a.ID).Status)
			if tt.wantExpired {
				assert.Equal(t, []int64{a.ID}, f.refunder.expired)
			} else {
				assert.Empty(t, f.refunder.expired)
			}
			assert.Zero(t, f.refunder.calls)
		})
	}
}

func TestService_SettleCanceledPayment(t *testing.T) {
	ctx := context.Background()
	system := models.CanceledBySystem

	tests := []struct {
		name         string
		appointment  models.Appointment
		refundErr    error
		wantCalls    int
		wantRefunded bool
		wantMonths   int
		wantPayment  models.PaymentStatus
	}{
		{
			name: "оплата после истечения срока: деньги возвращаются",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				Status: models.AppointmentCanceled, CanceledBy: &system,
				PaymentStatus: models.PaymentPaid, PaymentAmount: 5000},
			wantCalls:    1,
			wantRefunded: true,
			wantPayment:  models.PaymentRefunded,
		},
		{
			name: "возврат не удался: ваучер на 6 месяцев",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				Status: models.AppointmentCanceled, CanceledBy: &system,
				PaymentStatus: models.PaymentPaid, PaymentAmount: 5000},
			refundErr:   apperr.External("payment gateway request failed", nil),
			wantCalls:   1,
			wantMonths:  6,
			wantPayment: models.PaymentPaid,
		},
		{
			name: "действующая запись не трогается",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				PaymentStatus: models.PaymentPaid, PaymentAmount: 5000},
			wantPayment: models.PaymentPaid,
		},
		{
			name: "отменённая запись без оплаты не трогается",
			appointment: models.Appointment{StartTime: date(time.March, 15, 10), Origin: models.OriginSingle,
				Status: models.AppointmentCanceled, PaymentStatus: models.PaymentPending, PaymentAmount: 5000},
			wantPayment: models.PaymentPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.refunder.err = tt.refundErr
			a := f.seed(tt.appointment)

			out, err := f.svc.SettleCanceledPayment(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, f.refunder.calls)
			assert.Equal(t, tt.wantRefunded, out.Refunded)
			assert.Equal(t, tt.wantPayment, f.stored(a.ID).PaymentStatus)
			if tt.wantMonths > 0 {
				require.Len(t, f.comp.issued, 1)
				assert.Equal(t, compensation{userUID: clientUID, amount: 5000, months: tt.wantMonths}, f.comp.issued[0])
			} else {
				assert.Empty(t, f.comp.issued)
			}
			if tt.wantCalls > 0 {
				assert.Contains(t, f.notifier.admins, models.NotifyRefundIssued)
			}
		})
	}

	t.Run("запись не найдена", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.SettleCanceledPayment(ctx, 404)
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestService_AutoCompletePast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.vouchers[1] = models.Voucher{ID: 1, UserUID: clientUID, Type: models.VoucherFreeTreatment, AnyService: true,
		ExpiresAt: fixedNow.AddDate(0, 1, 0)}

	pending := f.seed(models.Appointment{StartTime: date(time.March, 9, 10), Origin: models.OriginSingle,
		PaymentStatus: models.PaymentPending, PaymentAmount: 5000})
	confirmed := f.seed(models.Appointment{StartTime: date(time.March, 9, 18), Origin: models.OriginVoucher,
		Status: models.AppointmentConfirmed, VoucherID: i64(1)})
	canceled := f.seed(models.Appointment{StartTime: date(time.March, 9, 12), Origin: models.OriginSingle,
		Status: models.AppointmentCanceled})
	today := f.seed(models.Appointment{StartTime: date(time.March, 10, 9), Origin: models.OriginSingle})
	older := f.seed(models.Appointment{StartTime: date(time.March, 7, 9), Origin: models.OriginSingle})

	n, err := f.svc.AutoCompletePast(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []int64{pending.ID, confirmed.ID} {
		got := f.stored(id)
		assert.Equal(t, models.AppointmentCompleted, got.Status)
		assert.True(t, got.ConfirmedByAdmin)
	}
	assert.Equal(t, models.PaymentPending, f.stored(pending.ID).PaymentStatus)
	assert.True(t, f.repo.vouchers[1].IsUsed)
	assert.Equal(t, models.AppointmentCanceled, f.stored(canceled.ID).Status)
	assert.Equal(t, models.AppointmentPending, f.stored(today.ID).Status)
	assert.Equal(t, models.AppointmentPending, f.stored(older.ID).Status)
}
