package domain

// MatchTolerance is the absolute difference, in the smallest currency unit,
// allowed between an extracted receipt amount and the invoice amount.
const MatchTolerance int64 = 1000

// Matches reports whether an extracted amount is close enough to the
// invoice amount to verify the payment without a human.
func Matches(invoiceAmount, extracted int64) bool {
	if extracted <= 0 {
		return false
	}
	diff := invoiceAmount - extracted
	if diff < 0 {
		diff = -diff
	}
	return diff <= MatchTolerance
}
