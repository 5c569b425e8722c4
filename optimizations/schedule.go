package optimizations

// LinearWarmup scales peak by min(step/warmup, 1). Step 0 gives a zero
// learning rate, so the first update only primes the moment estimates.
// A non-positive warmup disables the schedule.
func LinearWarmup(step, warmup int, peak float64) float64 {
	if warmup <= 0 {
		return peak
	}
	if step <= 0 {
		return 0
	}
	if step >= warmup {
		return peak
	}
	return peak * float64(step) / float64(warmup)
}
