package invoice

import "strings"

// Fixed NGN-per-unit conversion rates. This is a documented simplification:
// whether production should consult a live FX collaborator instead is an open
// product decision, so the rates stay in one table behind ConvertFromNGN.
var ngnPerUnit = map[string]float64{
	"NGN": 1,
	"USD": 1500,
	"EUR": 1600,
	"GBP": 1900,
}

// ConvertFromNGN returns a copy of the NGN-priced invoice converted into the
// requested currency at the fixed rate. NGN passes through unchanged.
func ConvertFromNGN(inv *Invoice, currency string) (*Invoice, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	rate, ok := ngnPerUnit[code]
	if !ok {
		return nil, ErrUnknownCurrency
	}

	out := *inv
	out.Currency = code
	if rate != 1 {
		out.BasePrice /= rate
		out.HourlyRate /= rate
		out.VehicleFee /= rate
		out.PersonnelFee /= rate
		out.TotalAmount /= rate
	}
	return &out, nil
}
