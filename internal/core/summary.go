package core

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string
	Name       string
	Amount     Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year     int
	Month    int // 1-12
	Income   Money
	Expenses Money
	// Balance is Income minus Expenses and may be negative.
	Balance    Money
	ByCategory []CategoryAmount
}

// LimitStatus describes month-to-date spending against a monthly limit.
type LimitStatus struct {
	LimitMinor     int64
	CurrentMinor   int64
	PercentageUsed float64
	Exceeded       bool
}
