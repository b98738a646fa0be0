package venue

import (
	"fmt"
	"strconv"
)

// parseFloats parses venue wire strings into price/qty floats, used by
// every parser since each venue sends numeric fields as JSON strings.
func parseFloats(priceStr, qtyStr string) (price, qty float64, err error) {
	price, err = strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid price %q: %w", priceStr, err)
	}
	qty, err = strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid quantity %q: %w", qtyStr, err)
	}
	return price, qty, nil
}
