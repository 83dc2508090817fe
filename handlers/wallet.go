package handlers

import (
	"tournament-wallet-system/middleware"
	"tournament-wallet-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/wallet/balance", walletService.GetBalanceHandler)
	secured.Get("/wallet/transactions", walletService.ListTransactionsHandler)

	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Get("/accounts/search", walletService.SearchAccountsHandler)
	admin.Post("/accounts/:id/deposit", walletService.DepositHandler)
	admin.Post("/accounts/:id/reconcile", walletService.ReconcileHandler)
}
