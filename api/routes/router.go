package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ridewell/alertcast-backend/api/controllers"
	"github.com/ridewell/alertcast-backend/api/middleware"
	alertsvc "github.com/ridewell/alertcast-backend/internal/alerts"
	"github.com/ridewell/alertcast-backend/internal/notifications"
	"github.com/ridewell/alertcast-backend/pkg/config"
	"github.com/ridewell/alertcast-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	registry *prometheus.Registry,
	alertsService alertsvc.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1/alerts", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminAPI, logg))
		r.Use(middleware.UserContext(logg))
		r.Post("/", controllers.CreateAlert(alertsService, logg))
		r.Get("/", controllers.ListAlerts(alertsService, logg))
		r.Get("/{alertId}", controllers.GetAlert(alertsService, logg))
	})

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(middleware.UserContext(logg))
		r.Get("/", controllers.ListNotifications(notificationsService, logg))
		r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
	})

	return r
}
