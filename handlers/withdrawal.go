package handlers

import (
	"tournament-wallet-system/middleware"
	"tournament-wallet-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWithdrawalRoutes(app *fiber.App, withdrawalService *services.WithdrawalService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/withdrawals", withdrawalService.RequestHandler)
	secured.Get("/withdrawals", withdrawalService.ListHandler)

	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Post("/withdrawals/:id/approve", withdrawalService.ApproveHandler)
	admin.Post("/withdrawals/:id/reject", withdrawalService.RejectHandler)
}
