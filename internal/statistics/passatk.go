package statistics

// PassAtK computes the unbiased pass@k estimator over n trials of which c
// passed:
//
//	pass@k = 1 - C(n-c, k) / C(n, k)
//
// the probability that at least one of k draws (without replacement) from
// the n trials is a pass. Computed as a running product to avoid factorial
// overflow. Returns 0 when k <= 0 or n <= 0.
func PassAtK(n, c, k int) float64 {
	if n <= 0 || k <= 0 {
		return 0.0
	}
	if c <= 0 {
		return 0.0
	}
	if n-c < k {
		// Too few failures to fill a draw of k: some draw always passes.
		return 1.0
	}

	// C(n-c, k)/C(n, k) = prod_{i=0}^{k-1} (n-c-i)/(n-i)
	prob := 1.0
	for i := 0; i < k; i++ {
		prob *= float64(n-c-i) / float64(n-i)
	}
	return 1.0 - prob
}

// PassHatK computes pass^k, the probability that k independent attempts all
// pass, from the observed per-trial pass rate c/n:
//
//	pass^k = (c/n)^k
//
// Returns 0 when n <= 0 or k <= 0.
func PassHatK(n, c, k int) float64 {
	if n <= 0 || k <= 0 {
		return 0.0
	}
	rate := float64(c) / float64(n)
	result := 1.0
	for i := 0; i < k; i++ {
		result *= rate
	}
	return result
}
