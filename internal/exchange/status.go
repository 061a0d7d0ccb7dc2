package exchange

import "hedgearb/internal/models"

// venueAStatusMap maps Venue A's raw order status strings to the
// normalized OrderStatus. Every non-fill terminal (rejected, expired,
// canceled) collapses to CANCELED.
var venueAStatusMap = map[string]models.OrderStatus{
	"NEW":              models.OrderStatusNew,
	"PARTIALLY_FILLED": models.OrderStatusPartiallyFilled,
	"FILLED":           models.OrderStatusFilled,
	"CANCELED":         models.OrderStatusCanceled,
	"EXPIRED":          models.OrderStatusCanceled,
	"REJECTED":         models.OrderStatusCanceled,
	"EXPIRED_IN_MATCH": models.OrderStatusCanceled,
}

// venueBStatusMap maps Venue B's raw order status strings (plus its
// liquidation/reduce-only/self-trade-prevention closures and position-close
// events) to the normalized OrderStatus.
var venueBStatusMap = map[string]models.OrderStatus{
	"open":      models.OrderStatusNew,
	"finish":    models.OrderStatusFilled,
	"cancelled": models.OrderStatusCanceled,
	"liquidated":  models.OrderStatusCanceled,
	"ioc":         models.OrderStatusCanceled,
	"auto_deleveraged": models.OrderStatusCanceled,
	"reduce_only":      models.OrderStatusCanceled,
	"position_close":   models.OrderStatusCanceled,
	"stp":              models.OrderStatusCanceled,
}

// normalizeStatus looks up raw in table, defaulting unknown strings to
// CANCELED so an unrecognized terminal never wedges the order cache open.
func normalizeStatus(table map[string]models.OrderStatus, raw string) models.OrderStatus {
	if status, ok := table[raw]; ok {
		return status
	}
	return models.OrderStatusCanceled
}
