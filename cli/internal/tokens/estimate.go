// Package tokens provides simple token estimation for diff text and the
// inverse byte-budget derivation used by the truncator. Estimation uses a
// byte-based chars/4 heuristic; model-specific estimators can be added later.
package tokens

// charsPerToken is the divisor for the simple byte-based estimator
// (roughly 4 bytes per token for typical English/code).
const charsPerToken = 4

// Estimate returns an estimated token count for text: ceil(len/4) bytes, so
// 1-4 bytes map to 1 token, 5-8 to 2, etc. Empty string returns 0.
func Estimate(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// BudgetBytes converts a token budget into the byte budget the truncator
// compares content lengths against. Non-positive budgets return 0.
func BudgetBytes(tokenBudget int) int {
	if tokenBudget <= 0 {
		return 0
	}
	return tokenBudget * charsPerToken
}

// Over reports whether text exceeds a token budget. A non-positive budget
// means unlimited.
func Over(text string, tokenBudget int) bool {
	if tokenBudget <= 0 {
		return false
	}
	return Estimate(text) > tokenBudget
}
