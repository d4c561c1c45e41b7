package cashback

import "github.com/shopspring/decimal"

var (
	halfCent = decimal.New(5, -3)
	hundred  = decimal.NewFromInt(100)
)

// RoundHalfDown rounds to cents, resolving an exact half toward zero.
func RoundHalfDown(d decimal.Decimal) decimal.Decimal {
	truncated := d.Truncate(2)
	if d.Sub(truncated).Abs().Equal(halfCent) {
		return truncated
	}
	return d.Round(2)
}

// refundScore is the negative cashback owed back for a refunded amount.
func refundScore(amount, percentage decimal.Decimal) decimal.Decimal {
	return RoundHalfDown(amount.Mul(percentage).Div(hundred).Neg())
}
