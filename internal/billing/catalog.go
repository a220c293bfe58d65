// Package billing holds the server-side price catalog. Amounts are never
// accepted from clients; every checkout session is priced from this table.
package billing

import (
	"cprtrainer/internal/types"
)

// Price describes one purchasable product.
type Price struct {
	ProductName string
	AmountCents int64
	Currency    string
}

// catalog maps payment types to their fixed prices. Both products are
// currently priced at $99.00 USD.
var catalog = map[types.PaymentType]Price{
	types.PaymentTypeSignup: {
		ProductName: "CPR Training Program - Individual Signup",
		AmountCents: 9900,
		Currency:    "usd",
	},
	types.PaymentTypeTeamMemberSeat: {
		ProductName: "CPR Training Program - Team Member Seat",
		AmountCents: 9900,
		Currency:    "usd",
	},
}

// PriceFor returns the catalog price for the given payment type. Unknown
// payment types return a validation error so handlers can reject the request
// before any provider call.
func PriceFor(paymentType types.PaymentType) (Price, error) {
	price, ok := catalog[paymentType]
	if !ok {
		return Price{}, types.NewAppError(
			types.ErrCodeValidationUnknownPayment,
			"unknown payment type: "+string(paymentType),
			nil,
		)
	}
	return price, nil
}
