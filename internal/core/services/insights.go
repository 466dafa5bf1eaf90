package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

const topN = 10

// Insights computes summary statistics over the connection records of
// an index: top companies, positions and industries, connections per
// month and recent-connection counts.
type Insights struct {
	now func() time.Time
}

// NewInsights creates an insights service.
func NewInsights() *Insights {
	return &Insights{now: time.Now}
}

// Stats summarises the dataset's connection records.
func (s *Insights) Stats(ctx context.Context, reader driven.IndexReader) (*domain.ArchiveStats, error) {
	conns, err := reader.ListByKind(ctx, domain.KindConnection)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	stats := &domain.ArchiveStats{
		TopCompanies:  topFieldCounts(conns, "Company"),
		TopPositions:  topFieldCounts(conns, "Position"),
		TopIndustries: topFieldCounts(conns, "Industry"),
		RecentCounts:  map[string]int{"30d": 0, "90d": 0, "365d": 0},
	}

	byMonth := make(map[string]int)
	now := s.now()
	for _, c := range conns {
		if c.Timestamp == nil {
			continue
		}
		byMonth[c.Timestamp.Format("2006-01")]++

		age := now.Sub(*c.Timestamp)
		if age < 0 {
			continue
		}
		days := int(age.Hours() / 24)
		for key, window := range map[string]int{"30d": 30, "90d": 90, "365d": 365} {
			if days <= window {
				stats.RecentCounts[key]++
			}
		}
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		stats.ConnectionsByMonth = append(stats.ConnectionsByMonth, domain.LabelCount{Label: m, Count: byMonth[m]})
	}

	return stats, nil
}

// topFieldCounts tallies a field across records and returns the topN
// labels, ties broken alphabetically.
func topFieldCounts(records []domain.Record, field string) []domain.LabelCount {
	counts := make(map[string]int)
	for _, rec := range records {
		value := strings.TrimSpace(rec.Field(field))
		if value == "" {
			continue
		}
		counts[value]++
	}

	out := make([]domain.LabelCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, domain.LabelCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
