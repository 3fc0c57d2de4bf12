package oscillator

// IsPrime reports whether n is prime.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// PrimesFrom returns the first n primes that are >= start.
func PrimesFrom(start, n int) []int {
	out := make([]int, 0, n)
	for c := max(start, 2); len(out) < n; c++ {
		if IsPrime(c) {
			out = append(out, c)
		}
	}
	return out
}
