package handlers

import (
	"tournament-wallet-system/middleware"
	"tournament-wallet-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService, participationService *services.ParticipationService) {
	// 🔓 Public reads
	app.Get("/tournaments", tournamentService.ListHandler)
	app.Get("/tournaments/slug/:slug", tournamentService.GetBySlugHandler)
	app.Get("/tournaments/:id", tournamentService.GetHandler)
	app.Get("/tournaments/:id/participants", tournamentService.ParticipantsHandler)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/tournaments", tournamentService.SubmitHandler)
	secured.Post("/tournaments/:id/join", participationService.JoinHandler)
	secured.Post("/tournaments/:id/cancel-participation", participationService.CancelParticipationHandler)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Post("/tournaments/:id/approve", tournamentService.ApproveHandler)
	admin.Post("/tournaments/:id/reject", tournamentService.RejectHandler)
	admin.Post("/tournaments/:id/cancel", tournamentService.CancelHandler)
	admin.Post("/tournaments/:id/payout", tournamentService.PayoutHandler)
}
