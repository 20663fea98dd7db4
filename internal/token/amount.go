package token

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The ledger encodes token amounts as integers with 7 fractional decimal
// digits (stroops).
const stroopsPerUnit = 10_000_000

// ParseStroops converts a user-facing decimal amount to the ledger's
// fixed-point representation. Excess precision is truncated, never rounded
// up, so the submitted amount can not exceed user intent:
// "3.999999995" becomes 39999999.
func ParseStroops(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}

	intPart, fracPart, hasFrac := strings.Cut(amount, ".")
	if intPart == "" && (!hasFrac || fracPart == "") {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	if intPart == "" {
		intPart = "0"
	}

	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}

	// Floor: anything beyond 7 fractional digits is dropped.
	if len(fracPart) > 7 {
		fracPart = fracPart[:7]
	}
	fracPart += strings.Repeat("0", 7-len(fracPart))

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	if whole > (math.MaxInt64-frac)/stroopsPerUnit {
		return 0, fmt.Errorf("amount %q overflows the ledger representation", amount)
	}

	return whole*stroopsPerUnit + frac, nil
}

// FormatDisplay scales a fixed-point amount back to display precision.
func FormatDisplay(stroops int64) string {
	return strconv.FormatFloat(float64(stroops)/stroopsPerUnit, 'f', 2, 64)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
