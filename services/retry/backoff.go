package retry

const (
	DefaultBaseMinutes = 30
	DefaultCapMinutes  = 240
)

// Backoff returns min(base * 2^previous, cap) minutes. previous is the retry
// count before the claim that triggered this delay.
func Backoff(previous, base, cap int) int {
	if base <= 0 {
		base = DefaultBaseMinutes
	}
	if cap < base {
		cap = base
	}
	if previous < 0 {
		previous = 0
	}

	delay := base
	for i := 0; i < previous; i++ {
		if delay >= cap {
			return cap
		}
		delay *= 2
	}
	if delay > cap {
		return cap
	}
	return delay
}
