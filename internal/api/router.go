package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldline/engine/internal/api/handlers"
	mw "github.com/fieldline/engine/internal/api/middleware"
	"github.com/fieldline/engine/internal/repository"
)

type Dependencies struct {
	HMACSecret []byte
	Users      repository.UserRepository

	AuthHandler          *handlers.AuthHandler
	DealsHandler         *handlers.DealsHandler
	ContactsHandler      *handlers.ContactsHandler
	ActivitiesHandler    *handlers.ActivitiesHandler
	AutomationsHandler   *handlers.AutomationsHandler
	TasksHandler         *handlers.TasksHandler
	StaleJobsHandler     *handlers.StaleJobsHandler
	DeviationsHandler    *handlers.DeviationsHandler
	NotificationsHandler *handlers.NotificationsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.Post("/logout", dep.AuthHandler.Logout)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret, dep.Users))

			protected.Route("/deals", func(dr chi.Router) {
				dr.Get("/", dep.DealsHandler.List)
				dr.Post("/", dep.DealsHandler.Create)
				dr.Get("/{id}", dep.DealsHandler.Get)
				dr.Patch("/{id}", dep.DealsHandler.UpdateMetadata)
				dr.Delete("/{id}", dep.DealsHandler.Delete)
				dr.Post("/{id}/transition", dep.DealsHandler.Transition)
				dr.Post("/{id}/approve", dep.DealsHandler.Approve)
				dr.Post("/{id}/reject", dep.DealsHandler.Reject)
				dr.Post("/{id}/reconcile", dep.StaleJobsHandler.Reconcile)
				dr.Get("/{id}/activities", dep.ActivitiesHandler.ListByDeal)
				dr.Post("/{id}/undo", dep.ActivitiesHandler.Undo)
			})

			protected.Get("/stages", dep.DealsHandler.Stages)

			protected.Route("/contacts", func(cr chi.Router) {
				cr.Get("/", dep.ContactsHandler.List)
				cr.Post("/", dep.ContactsHandler.Create)
				cr.Get("/{id}", dep.ContactsHandler.Get)
				cr.Get("/{id}/activities", dep.ActivitiesHandler.ListByContact)
			})

			protected.Post("/activities", dep.ActivitiesHandler.Log)

			protected.Route("/automations", func(ar chi.Router) {
				ar.Get("/", dep.AutomationsHandler.List)
				ar.Post("/", dep.AutomationsHandler.Create)
				ar.Post("/presets", dep.AutomationsHandler.SeedPresets)
				ar.Patch("/{id}", dep.AutomationsHandler.Toggle)
				ar.Delete("/{id}", dep.AutomationsHandler.Delete)
			})

			protected.Route("/tasks", func(tr chi.Router) {
				tr.Get("/", dep.TasksHandler.List)
				tr.Post("/", dep.TasksHandler.Create)
				tr.Get("/overdue", dep.TasksHandler.ListOverdue)
				tr.Post("/{id}/complete", dep.TasksHandler.Complete)
			})

			protected.Route("/stale-jobs", func(sr chi.Router) {
				sr.Get("/", dep.StaleJobsHandler.List)
				sr.Post("/scan", dep.StaleJobsHandler.Scan)
			})

			protected.Route("/deviations", func(dr chi.Router) {
				dr.Get("/", dep.DeviationsHandler.List)
				dr.Post("/{id}/resolve", dep.DeviationsHandler.Resolve)
			})
			protected.Get("/business-rules", dep.DeviationsHandler.ListRules)

			protected.Route("/notifications", func(nr chi.Router) {
				nr.Get("/", dep.NotificationsHandler.List)
				nr.Post("/{id}/read", dep.NotificationsHandler.MarkRead)
			})
		})
	})

	return r
}
