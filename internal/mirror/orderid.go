package mirror

import (
	"github.com/google/uuid"

	"trade-mirror-bot/internal/types"
)

var orderNamespace = uuid.MustParse("6f1d3c1e-8a4b-5d2e-9c07-2b5e4f1a7d90")

// ClientOrderID is stable for a (task, event, intent) triple. It ties a trade log
// entry to the exchange order. Binance only rejects a reused id while the first
// order is still open, so filled orders are not deduplicated by it.
func ClientOrderID(taskID string, key types.EventKey, intent types.OrderIntent) string {
	return uuid.NewSHA1(orderNamespace, []byte(taskID+"|"+string(key)+"|"+intent.String())).String()
}
