package storefront

type View int

const (
	ViewBrowsing View = iota
	ViewCartReview
	ViewCheckout
	ViewConfirmed
)

func (v View) String() string {
	switch v {
	case ViewBrowsing:
		return "browsing"
	case ViewCartReview:
		return "cart-review"
	case ViewCheckout:
		return "checkout"
	case ViewConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}
