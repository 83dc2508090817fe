// services/accounts.go
package services

import (
	"strconv"
	"strings"

	"tournament-wallet-system/models"

	"github.com/gofiber/fiber/v2"
)

// SearchAccountsHandler searches accounts by username for back-office lookups.
func (s *WalletService) SearchAccountsHandler(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var accounts []models.Account
	db := s.DB.Model(&models.Account{}).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(username) LIKE ?", searchTerm)
	}

	if err := db.Find(&accounts).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	// Minimal response shape: no balances on a lookup endpoint.
	type AccountSummary struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Currency string `json:"currency"`
	}
	res := make([]AccountSummary, len(accounts))
	for i, a := range accounts {
		res[i] = AccountSummary{
			ID:       a.ID,
			Username: a.Username,
			Currency: a.Currency,
		}
	}

	return c.JSON(res)
}
