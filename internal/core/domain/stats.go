package domain

// LabelCount pairs a label (company, position, industry, month) with
// how many records carry it.
type LabelCount struct {
	Label string
	Count int
}

// ArchiveStats summarises the connection records of an archive.
type ArchiveStats struct {
	// TopCompanies ranks current companies by connection count.
	TopCompanies []LabelCount

	// TopPositions ranks job titles by connection count.
	TopPositions []LabelCount

	// TopIndustries ranks industries by connection count.
	TopIndustries []LabelCount

	// ConnectionsByMonth counts connections per "YYYY-MM" month,
	// oldest first.
	ConnectionsByMonth []LabelCount

	// RecentCounts counts connections made in the last 30, 90 and
	// 365 days, keyed "30d", "90d", "365d".
	RecentCounts map[string]int
}
