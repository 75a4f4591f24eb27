package invoice

import "strings"

// Pricing constants are fixed NGN tariffs. All pricing is computed in NGN and
// converted to the requested currency last, at a fixed rate (see rates.go).
const (
	// two-tier service pricing: a known service type gets its own tier,
	// everything else falls back to the unarmed tier
	armedBasePrice  = 100000.0
	armedHourlyRate = 25000.0

	unarmedBasePrice  = 50000.0
	unarmedHourlyRate = 15000.0

	// fixed per-protector rate
	personnelRate = 10000.0

	// fee when the requested vehicle matches no known name
	defaultVehicleFee = 15000.0
)

// vehicleFees maps lowercase vehicle-name fragments to their NGN fee.
var vehicleFees = []struct {
	name string
	fee  float64
}{
	{"mercedes s-class", 40000},
	{"bmw 7 series", 35000},
	{"armored suv", 50000},
	{"cadillac escalade", 45000},
	{"van", 20000},
}

// Request carries the booking fields the pricing function reads. Keeping it a
// plain struct keeps ComputeInvoice pure and free of repository lookups.
type Request struct {
	ServiceType    string
	VehicleType    string
	ProtectorCount int
	Duration       string // free text, parsed by ParseDurationHours
}

// ComputeInvoice prices a booking request in the given currency.
func ComputeInvoice(req Request, currency string) (*Invoice, error) {
	base, hourly := serviceTier(req.ServiceType)
	hours := ParseDurationHours(req.Duration)

	protectors := req.ProtectorCount
	if protectors < 1 {
		protectors = 1
	}

	inv := &Invoice{
		BasePrice:     base,
		HourlyRate:    hourly,
		VehicleFee:    vehicleFee(req.VehicleType),
		PersonnelFee:  personnelRate * float64(protectors),
		DurationHours: hours,
	}
	inv.TotalAmount = inv.BasePrice + inv.HourlyRate*float64(inv.DurationHours) + inv.VehicleFee + inv.PersonnelFee

	converted, err := ConvertFromNGN(inv, currency)
	if err != nil {
		return nil, err
	}
	return converted, nil
}

// serviceTier returns (base, hourly) for the two-tier service-type lookup.
func serviceTier(serviceType string) (base, hourly float64) {
	switch strings.ToLower(strings.TrimSpace(serviceType)) {
	case "armed_protection":
		return armedBasePrice, armedHourlyRate
	default:
		return unarmedBasePrice, unarmedHourlyRate
	}
}

// vehicleFee returns the NGN fee for the first known vehicle-name match.
func vehicleFee(vehicleType string) float64 {
	name := strings.ToLower(strings.TrimSpace(vehicleType))
	if name == "" {
		return defaultVehicleFee
	}
	for _, v := range vehicleFees {
		if strings.Contains(name, v.name) {
			return v.fee
		}
	}
	return defaultVehicleFee
}
