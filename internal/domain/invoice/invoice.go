package invoice

import (
	"errors"
	"fmt"
	"strings"
)

// Invoice is the priced breakdown attached to an operator message.
// Total = BasePrice + HourlyRate*DurationHours + VehicleFee + PersonnelFee.
type Invoice struct {
	BasePrice     float64 `json:"base_price"`
	HourlyRate    float64 `json:"hourly_rate"`
	VehicleFee    float64 `json:"vehicle_fee"`
	PersonnelFee  float64 `json:"personnel_fee"`
	DurationHours int     `json:"duration_hours"`
	Currency      string  `json:"currency"`
	TotalAmount   float64 `json:"total_amount"`
}

var ErrUnknownCurrency = errors.New("unknown currency")

// Breakdown renders the human-readable fee breakdown shown in the thread.
func (inv *Invoice) Breakdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Base price: %s %.2f\n", inv.Currency, inv.BasePrice)
	fmt.Fprintf(&sb, "Hourly rate: %s %.2f x %dh = %s %.2f\n",
		inv.Currency, inv.HourlyRate, inv.DurationHours,
		inv.Currency, inv.HourlyRate*float64(inv.DurationHours))
	fmt.Fprintf(&sb, "Vehicle fee: %s %.2f\n", inv.Currency, inv.VehicleFee)
	fmt.Fprintf(&sb, "Personnel fee: %s %.2f\n", inv.Currency, inv.PersonnelFee)
	fmt.Fprintf(&sb, "Total: %s %.2f", inv.Currency, inv.TotalAmount)
	return sb.String()
}

// Validate performs basic invariant checks on a priced invoice.
func (inv *Invoice) Validate() error {
	if inv.Currency == "" {
		return ErrUnknownCurrency
	}
	if inv.TotalAmount <= 0 {
		return errors.New("invoice total must be positive")
	}
	if inv.DurationHours < 1 {
		return errors.New("invoice duration must be at least one hour")
	}
	return nil
}
