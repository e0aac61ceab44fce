package pricing

const (
	// MinVisitMinutes is the shortest visit the scheduler will plan.
	MinVisitMinutes = 60
	// MaxVisitMinutes caps a single visit at six hours.
	MaxVisitMinutes = 360
	// defaultServiceMinutes is used for services the catalog has no estimate for.
	defaultServiceMinutes = 60
	defaultAddOnMinutes   = 15
	comboEfficiency       = 0.9
)

// EstimateDurationMinutes sums per-service estimates, takes 10% off when two
// or more services are combined, adds each add-on and clamps the result.
func (c *Catalog) EstimateDurationMinutes(serviceIDs, addOnIDs []string) int {
	services := dedupe(serviceIDs)

	total := 0
	for _, id := range services {
		minutes := defaultServiceMinutes
		if svc, ok := c.Service(id); ok && svc.DurationMinutes > 0 {
			minutes = svc.DurationMinutes
		}
		total += minutes
	}
	if len(services) >= 2 {
		total = int(float64(total)*comboEfficiency + 0.5)
	}

	for _, id := range dedupe(addOnIDs) {
		minutes := defaultAddOnMinutes
		if addOn, ok := c.AddOn(id); ok && addOn.DurationMinutes > 0 {
			minutes = addOn.DurationMinutes
		}
		total += minutes
	}

	if total < MinVisitMinutes {
		return MinVisitMinutes
	}
	if total > MaxVisitMinutes {
		return MaxVisitMinutes
	}
	return total
}
