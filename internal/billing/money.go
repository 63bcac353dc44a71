package billing

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places money is persisted with.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Amounts holds the revenue figures derived from a number of hours.
type Amounts struct {
	Gross decimal.Decimal
	Tax   decimal.Decimal
	Net   decimal.Decimal
}

// ComputeAmounts derives gross, tax and net at full precision.
func ComputeAmounts(hours, hourlyRate, taxPercentage decimal.Decimal) Amounts {
	gross := hours.Mul(hourlyRate)
	tax := gross.Mul(taxPercentage).Div(hundred)
	return Amounts{
		Gross: gross,
		Tax:   tax,
		Net:   gross.Sub(tax),
	}
}

// Rounded applies the persistence rounding policy (half-up, two places) to
// each figure independently.
func (a Amounts) Rounded() Amounts {
	return Amounts{
		Gross: RoundMoney(a.Gross),
		Tax:   RoundMoney(a.Tax),
		Net:   RoundMoney(a.Net),
	}
}

// RoundMoney rounds half away from zero, which is half-up for the
// non-negative amounts the ledger deals with.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
