// utils/money.go
package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatAmount renders minor units as a human-readable dollar amount with
// thousands separators, e.g. 1234567 -> "$12,345.67". Used in logs and the
// ledger export; never for arithmetic.
func FormatAmount(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return moneyPrinter.Sprintf("%s$%d.%02d", sign, minorUnits/100, minorUnits%100)
}
