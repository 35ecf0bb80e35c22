package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/teamplan/scheduler/internal/auth"
	"github.com/teamplan/scheduler/internal/availability"
	"github.com/teamplan/scheduler/internal/calendar"
	"github.com/teamplan/scheduler/internal/directory"
	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/notification"
	"github.com/teamplan/scheduler/internal/realtime"
	"github.com/teamplan/scheduler/internal/room"
	"github.com/teamplan/scheduler/internal/transport/middleware"
	"github.com/teamplan/scheduler/internal/transport/swagger"
	"github.com/teamplan/scheduler/internal/user"
)

// Handlers bundles every HTTP handler mounted by the server.
type Handlers struct {
	Auth         *auth.Handler
	User         *user.Handler
	Directory    *directory.Handler
	Calendar     *calendar.Handler
	Event        *event.Handler
	Room         *room.Handler
	Availability *availability.Handler
	Notification *notification.Handler
	Realtime     *realtime.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, rdb *redis.Client, h Handlers, corsOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, rdb)

	router.Use(middleware.CORS(corsOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Handle("/swagger/*", swagger.Handler())

	// Token rides the query string on the websocket route, so it lives
	// outside the bearer middleware.
	if h.Realtime != nil {
		router.Get("/ws/notifications", h.Realtime.Serve)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/register", h.Auth.Register)
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.Refresh)
			sr.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Route("/users", func(ur chi.Router) {
				ur.Get("/", h.User.ListUsers)
				ur.Get("/me", h.User.Me)
				ur.Patch("/me", h.User.UpdateMe)
				ur.Put("/me/availability", h.Availability.UpsertSchedule)
				ur.Get("/{id}", h.User.GetUser)
				ur.Get("/{id}/availability", h.Availability.GetUserAvailability)
				ur.Patch("/{id}/assign", h.User.AssignUser)
				ur.Delete("/{id}", h.User.DeactivateUser)
			})

			pr.Route("/availability/slots", func(sr chi.Router) {
				sr.Post("/", h.Availability.CreateSlot)
				sr.Get("/", h.Availability.ListSlots)
				sr.Post("/{id}/book", h.Availability.BookSlot)
				sr.Delete("/{id}", h.Availability.CancelSlot)
			})

			pr.Route("/organizations", func(or chi.Router) {
				or.Get("/", h.Directory.ListOrganizations)
				or.Post("/", h.Directory.CreateOrganization)
			})
			pr.Route("/departments", func(dr chi.Router) {
				dr.Get("/", h.Directory.ListDepartments)
				dr.Post("/", h.Directory.CreateDepartment)
				dr.Patch("/{id}", h.Directory.UpdateDepartment)
			})

			pr.Route("/calendars", func(cr chi.Router) {
				cr.Get("/", h.Calendar.ListCalendars)
				cr.Post("/", h.Calendar.CreateCalendar)
				cr.Get("/{id}", h.Calendar.GetCalendar)
				cr.Patch("/{id}", h.Calendar.UpdateCalendar)
				cr.Delete("/{id}", h.Calendar.DeleteCalendar)
				cr.Get("/{id}/conflicts", h.Calendar.ListConflicts)
				cr.Route("/{id}/members", func(mr chi.Router) {
					mr.Get("/", h.Calendar.ListMembers)
					mr.Post("/", h.Calendar.AddMember)
					mr.Get("/{uid}", h.Calendar.GetMember)
					mr.Patch("/{uid}", h.Calendar.UpdateMember)
					mr.Delete("/{uid}", h.Calendar.RemoveMember)
					mr.Get("/{uid}/availability", h.Calendar.MemberAvailability)
				})
			})

			pr.Route("/events", func(er chi.Router) {
				er.Get("/", h.Event.ListEvents)
				er.Post("/", h.Event.CreateEvent)
				er.Get("/{id}", h.Event.GetEvent)
				er.Put("/{id}", h.Event.UpdateEvent)
				er.Delete("/{id}", h.Event.DeleteEvent)
				er.Patch("/{id}/participants/{uid}/status", h.Event.UpdateParticipantStatus)
				er.Route("/{id}/attachments", func(ar chi.Router) {
					ar.Post("/", h.Event.UploadAttachment)
					ar.Get("/", h.Event.ListAttachments)
					ar.Get("/{aid}", h.Event.DownloadAttachment)
					ar.Delete("/{aid}", h.Event.DeleteAttachment)
				})
				er.Route("/{id}/comments", func(cmr chi.Router) {
					cmr.Get("/", h.Event.ListComments)
					cmr.Post("/", h.Event.AddComment)
				})
			})

			pr.Route("/rooms", func(rr chi.Router) {
				rr.Get("/", h.Room.ListRooms)
				rr.Post("/", h.Room.CreateRoom)
				rr.Get("/{id}", h.Room.GetRoom)
				rr.Patch("/{id}", h.Room.UpdateRoom)
				rr.Post("/{id}/access", h.Room.GrantAccess)
				rr.Get("/{id}/access", h.Room.ListAccess)
				rr.Delete("/{id}/access/{accessID}", h.Room.RevokeAccess)
			})

			pr.Route("/notifications", func(nr chi.Router) {
				nr.Get("/", h.Notification.ListNotifications)
				nr.Patch("/{id}/read", h.Notification.MarkRead)
				nr.Delete("/{id}", h.Notification.DeleteNotification)
			})
			pr.Route("/admin/notifications", func(ar chi.Router) {
				ar.Post("/", h.Notification.CreateAdminNotification)
				ar.Get("/active", h.Notification.ListAdminNotifications)
				ar.Post("/{id}/dismiss", h.Notification.DismissAdminNotification)
				ar.Delete("/{id}", h.Notification.DeactivateAdminNotification)
			})
			pr.Route("/push/subscriptions", func(psr chi.Router) {
				psr.Post("/", h.Notification.Subscribe)
				psr.Delete("/{id}", h.Notification.Unsubscribe)
			})
		})
	})
}
