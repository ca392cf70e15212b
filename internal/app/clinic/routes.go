// Package clinic собирает HTTP API клиники и периодические задачи в одно приложение.
package clinic

import (
	"log/slog"
	"net"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/appointments"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/catalog"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/health"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/notifications"
	paymenthandler "github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/payment"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/schedule"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/subscriptions"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/users"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/handlers/vouchers"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/lib/metrics"
)

// Handlers обработчики всех групп маршрутов.
type Handlers struct {
	Login         *login.Handler
	Register      *register.Handler
	Health        *health.Handler
	Users         *users.Handler
	Catalog       *catalog.Handler
	Schedule      *schedule.Handler
	Appointments  *appointments.Handler
	Vouchers      *vouchers.Handler
	Subscriptions *subscriptions.Handler
	Notifications *notifications.Handler
	Payment       *paymenthandler.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, authClient middlewarectx.Service, limiter *middlewarectx.RateLimiter, trustedProxies []*net.IPNet, h Handlers) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middlewarectx.RealIP(trustedProxies),
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))

		// Открытые конечные точки
		r.Post("/auth/register", h.Register.ServeHTTP)
		r.Post("/auth/login", h.Login.ServeHTTP)
		r.Get("/services", h.Catalog.ListServices)
		r.Get("/services/{id}", h.Catalog.GetService)
		r.Get("/plans", h.Catalog.ListPlans)
		r.Get("/plans/{id}", h.Catalog.GetPlan)
		r.Get("/config", h.Catalog.GetConfig)
		r.Get("/schedule/availability", h.Schedule.Availability)

		// Webhook endpoint (без аутентификации, подпись проверяет сервис)
		r.Post("/stripe/webhook", h.Payment.Webhook)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authClient, logger))
			admin := middlewarectx.AdminOnly(logger)

			r.Get("/users/me", h.Users.Me)
			r.Patch("/users/me", h.Users.UpdateMe)
			r.Get("/users/me/anamnesis", h.Users.GetAnamnesis)
			r.Put("/users/me/anamnesis", h.Users.SaveAnamnesis)

			r.With(admin).Post("/services", h.Catalog.CreateService)
			r.With(admin).Put("/services/{id}", h.Catalog.UpdateService)
			r.With(admin).Delete("/services/{id}", h.Catalog.DeleteService)
			r.With(admin).Post("/plans", h.Catalog.CreatePlan)
			r.With(admin).Put("/plans/{id}", h.Catalog.UpdatePlan)
			r.With(admin).Delete("/plans/{id}", h.Catalog.DeletePlan)
			r.With(admin).Patch("/config", h.Catalog.UpdateConfig)

			r.Post("/appointments", h.Appointments.Create)
			r.Get("/appointments", h.Appointments.List)
			r.Get("/appointments/{id}", h.Appointments.Get)
			r.Post("/appointments/{id}/cancel", h.Appointments.Cancel)
			r.Post("/appointments/{id}/reschedule", h.Appointments.Reschedule)
			r.With(admin).Post("/appointments/{id}/confirm", h.Appointments.Confirm)
			r.With(admin).Post("/appointments/{id}/complete", h.Appointments.Complete)
			r.With(admin).Post("/appointments/{id}/no-show", h.Appointments.NoShow)

			r.Get("/vouchers", h.Vouchers.Mine)
			r.Post("/vouchers/validate", h.Vouchers.Validate)
			r.Post("/vouchers/{id}/activate", h.Vouchers.Activate)

			r.Get("/subscriptions/me", h.Subscriptions.Me)
			r.Post("/subscriptions", h.Subscriptions.Subscribe)
			r.Post("/subscriptions/me/cancel", h.Subscriptions.Cancel)
			r.Get("/subscriptions/me/usage", h.Subscriptions.Usage)

			r.Get("/notifications", h.Notifications.List)
			r.Get("/notifications/unread-count", h.Notifications.UnreadCount)
			r.Post("/notifications/{id}/read", h.Notifications.MarkRead)
			r.Post("/notifications/read-all", h.Notifications.MarkAllRead)

			r.Post("/stripe/appointments/{id}/checkout", h.Payment.Checkout)
			r.Post("/stripe/portal", h.Payment.Portal)
			r.Get("/stripe/payment-methods", h.Payment.PaymentMethods)

			r.Route("/admin", func(r chi.Router) {
				r.Use(admin)
				r.Get("/users", h.Users.List)
				r.Get("/users/{uid}", h.Users.Get)
				r.Get("/services", h.Catalog.ListServices)
				r.Get("/plans", h.Catalog.ListPlans)

				r.Get("/schedule/availability", h.Schedule.AdminAvailability)
				r.Get("/schedule/templates", h.Schedule.ListTemplates)
				r.Put("/schedule/templates/{weekday}", h.Schedule.SaveTemplate)
				r.Get("/schedule/overrides", h.Schedule.ListOverrides)
				r.Put("/schedule/overrides", h.Schedule.SaveOverride)
				r.Delete("/schedule/overrides/{date}", h.Schedule.DeleteOverride)

				r.Post("/vouchers", h.Vouchers.Issue)
				r.Get("/vouchers", h.Vouchers.List)
				r.Delete("/vouchers/{id}", h.Vouchers.Delete)

				r.Post("/subscriptions/{user_uid}/pause", h.Subscriptions.Pause)
				r.Post("/subscriptions/{user_uid}/resume", h.Subscriptions.Resume)

				r.Get("/stripe/revenue", h.Payment.Revenue)
			})
		})
	})

	r.Get("/health", h.Health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
