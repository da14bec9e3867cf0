package report

// Size category names, smallest to largest.
const (
	SizeOneLiner = "One Liner"
	SizeSmall    = "Small"
	SizeMedium   = "Medium"
	SizeLarge    = "Large"
	SizeHuge     = "Huge"
	SizeMassive  = "Massive"
)

// SizeOrder fixes the display order of the size distribution.
var SizeOrder = []string{SizeOneLiner, SizeSmall, SizeMedium, SizeLarge, SizeHuge, SizeMassive}

// CategorizePRSize buckets a PR by total lines changed.
func CategorizePRSize(additions, deletions int) string {
	total := additions + deletions
	switch {
	case total <= 1:
		return SizeOneLiner
	case total <= 100:
		return SizeSmall
	case total <= 500:
		return SizeMedium
	case total <= 1500:
		return SizeLarge
	case total <= 5000:
		return SizeHuge
	default:
		return SizeMassive
	}
}
