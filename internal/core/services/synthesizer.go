package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// noMatchAnswer is the deterministic response when nothing relevant
// exists in the archive. It carries no citations.
const noMatchAnswer = "No direct matches found. Try different keywords or a broader query."

const maxListedConnections = 10

// sourceAliases maps question phrasing to archive source files for
// count questions ("how many recommendations ...").
var sourceAliases = map[string]string{
	"connections":     "Connections.csv",
	"connection":      "Connections.csv",
	"positions":       "Positions.csv",
	"position":        "Positions.csv",
	"profile":         "Profile.csv",
	"recommendations": "Recommendations_Given.csv",
	"recommendation":  "Recommendations_Given.csv",
	"learning":        "Learning.csv",
	"courses":         "Learning.csv",
	"events":          "Events.csv",
	"messages":        "messages.csv",
	"message":         "messages.csv",
}

var (
	countPattern   = regexp.MustCompile(`\b(how many|count|number of|total)\b`)
	companyPattern = regexp.MustCompile(
		`(?i)connections?\s+(?:who\s+)?(?:work(?:s|ing)?\s+(?:at|for)|employed\s+by|at|from)\s+(.+?)(?:\?|$)`)
	companyListPattern = regexp.MustCompile(
		`(?i)connections?\s+(?:who\s+)?(?:have\s+worked\s+at|work(?:s|ing)?\s+(?:at|for)|employed\s+by|at)\s+(.+?)(?:\?|$)`)
	companySplitPattern   = regexp.MustCompile(`\s+(?:and|or)\s+|,\s*`)
	bothWordPattern       = regexp.MustCompile(`(?i)\bboth\b`)
	eitherWordPattern     = regexp.MustCompile(`(?i)\beither\b`)
	leadingGroupWord      = regexp.MustCompile(`(?i)^(?:both|either)\s+`)
	referralPattern       = regexp.MustCompile(`(?i)refer\s+me\s+to\s+(.+?)(?:\s+(?:jobs?|roles?|positions?))?(?:\?|$)`)
	referralAtPattern     = regexp.MustCompile(`(?i)refer\s+me\s+.*?\s+at\s+(.+?)(?:\s+(?:jobs?|roles?|positions?))?(?:\?|$)`)
	articleDaysPattern    = regexp.MustCompile(`last\s+(\d+)\s+days?`)
	articlePopularPattern = regexp.MustCompile(`\btop\b|popular|best[ -]performing`)
	wordPattern           = regexp.MustCompile(`[a-zA-Z0-9]+`)
)

// Synthesizer turns retrieval results and structured index lookups
// into cited answers. It is fully deterministic: structured questions
// are answered by counting and filtering records, everything else
// falls back to listing the closest retrieved matches.
type Synthesizer struct {
	now func() time.Time
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{now: time.Now}
}

// TryIntent answers structured questions (counts, company lookups,
// referrals, recency) directly from the index. Returns nil when the
// question matches no known intent and retrieval should take over.
func (s *Synthesizer) TryIntent(ctx context.Context, reader driven.IndexReader, question string) (*domain.Answer, error) {
	lowered := strings.ToLower(strings.TrimSpace(question))
	if lowered == "" {
		return nil, domain.ErrInvalidInput
	}

	if strings.Contains(lowered, "article") {
		if answer, err := s.articleIntent(ctx, reader, lowered); answer != nil || err != nil {
			return answer, err
		}
	}

	if strings.Contains(lowered, "connection") {
		if answer, err := s.connectionIntent(ctx, reader, question, lowered); answer != nil || err != nil {
			return answer, err
		}
	}

	if company := parseReferralCompany(question); company != "" {
		return s.referralAnswer(ctx, reader, company)
	}

	if isEngagementQuestion(lowered) {
		return s.engagementAnswer(ctx, reader)
	}

	if isCountQuestion(lowered) {
		if source := inferSource(lowered); source != "" {
			return s.sourceCountAnswer(ctx, reader, source)
		}
	}

	return nil, nil
}

// Compose builds the fallback answer from retrieved records. An empty
// result produces the no-match answer with zero citations.
func (s *Synthesizer) Compose(retrieved []domain.Retrieved) *domain.Answer {
	if len(retrieved) == 0 {
		return &domain.Answer{Text: noMatchAnswer}
	}

	answer := &domain.Answer{Text: "Here are the closest matches from your archive."}
	for _, r := range retrieved {
		answer.Citations = append(answer.Citations, citationFor(r.Record, snippetOf(r.Record)))
	}
	return answer
}

// articleIntent handles article totals and "articles in the last N
// days" questions.
func (s *Synthesizer) articleIntent(ctx context.Context, reader driven.IndexReader, lowered string) (*domain.Answer, error) {
	articles, err := reader.ListByKind(ctx, domain.KindArticle)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}

	if days := parseArticleDays(lowered); days > 0 {
		cutoff := s.now().AddDate(0, 0, -days)
		count := 0
		missing := 0
		var cited []domain.Record
		for _, a := range articles {
			if a.Timestamp == nil {
				missing++
				continue
			}
			if a.Timestamp.Before(cutoff) {
				continue
			}
			count++
			if len(cited) < maxListedConnections {
				cited = append(cited, a)
			}
		}

		text := fmt.Sprintf("You published %d articles in the last %d days.", count, days)
		if missing > 0 {
			text += fmt.Sprintf(" (%d article(s) missing a created date were skipped.)", missing)
		}
		answer := &domain.Answer{Text: text}
		for _, rec := range cited {
			answer.Citations = append(answer.Citations,
				citationFor(rec, "Created on: "+rec.Timestamp.Format("2006-01-02 15:04")))
		}
		return answer, nil
	}

	if articlePopularPattern.MatchString(lowered) {
		return s.popularArticlesAnswer(articles), nil
	}

	if isCountQuestion(lowered) || containsAny(lowered, "so far", "total", "overall", "to date", "all time") {
		return &domain.Answer{
			Text: fmt.Sprintf("You have published %d articles so far.", len(articles)),
		}, nil
	}

	return nil, nil
}

// popularArticlesAnswer approximates popularity by article length: the
// export carries no view or like counts.
func (s *Synthesizer) popularArticlesAnswer(articles []domain.Record) *domain.Answer {
	text := fmt.Sprintf("You have published %d articles so far.", len(articles))

	type scored struct {
		rec   domain.Record
		words int
	}
	var entries []scored
	for _, a := range articles {
		if n := len(wordPattern.FindAllString(a.Text, -1)); n > 0 {
			entries = append(entries, scored{rec: a, words: n})
		}
	}
	if len(entries) == 0 {
		return &domain.Answer{
			Text: text + " I couldn't estimate popularity because article lengths were missing.",
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].words > entries[j].words })
	if len(entries) > 5 {
		entries = entries[:5]
	}
	answer := &domain.Answer{
		Text: text + " The export does not include views or likes, so popularity is approximated by longer articles.",
	}
	for _, e := range entries {
		answer.Citations = append(answer.Citations,
			citationFor(e.rec, fmt.Sprintf("Length estimate: %d words", e.words)))
	}
	return answer
}

// connectionIntent handles company filters, counts and recency over
// connection records.
func (s *Synthesizer) connectionIntent(
	ctx context.Context, reader driven.IndexReader, question, lowered string,
) (*domain.Answer, error) {
	company := parseCompany(question)

	recent := containsAny(lowered, "most recent", "recently", "latest")
	if recent && company != "" {
		return s.recentByCompanyAnswer(ctx, reader, company)
	}

	if companies, requireAll := parseCompanyList(question); len(companies) > 1 {
		return s.companyListAnswer(ctx, reader, lowered, companies, requireAll)
	}

	if company != "" {
		conns, err := s.connectionsAt(ctx, reader, company)
		if err != nil {
			return nil, err
		}
		if isCountQuestion(lowered) {
			return &domain.Answer{
				Text:      fmt.Sprintf("You have %d connections at %s.", len(conns), company),
				Citations: connectionCitations(conns, maxListedConnections),
			}, nil
		}
		if len(conns) == 0 {
			return &domain.Answer{Text: fmt.Sprintf("No connections found for %s.", company)}, nil
		}
		return &domain.Answer{
			Text:      fmt.Sprintf("Here are your connections who work at %s.", company),
			Citations: connectionCitations(conns, maxListedConnections),
		}, nil
	}

	if recent {
		return s.recentConnectionsAnswer(ctx, reader)
	}

	if isCountQuestion(lowered) {
		conns, err := reader.ListByKind(ctx, domain.KindConnection)
		if err != nil {
			return nil, fmt.Errorf("listing connections: %w", err)
		}
		return &domain.Answer{
			Text: fmt.Sprintf("You have %d connections.", len(conns)),
		}, nil
	}

	return nil, nil
}

// companyListAnswer answers questions naming several companies at
// once: a joint count, per-company counts, or a merged listing.
func (s *Synthesizer) companyListAnswer(
	ctx context.Context, reader driven.IndexReader, lowered string, companies []string, requireAll bool,
) (*domain.Answer, error) {
	list := strings.Join(companies, ", ")

	if isCountQuestion(lowered) {
		if requireAll {
			count, err := s.countAtAllCompanies(ctx, reader, companies)
			if err != nil {
				return nil, err
			}
			return &domain.Answer{Text: fmt.Sprintf(
				"You have %d connections whose current company matches all of: %s."+
					" The export only records a connection's current company, not their full work history.",
				count, list)}, nil
		}
		parts := make([]string, 0, len(companies))
		for _, company := range companies {
			conns, err := s.connectionsAt(ctx, reader, company)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf("%s: %d", company, len(conns)))
		}
		return &domain.Answer{
			Text: fmt.Sprintf("Counts by company (current company only): %s.", strings.Join(parts, "; ")),
		}, nil
	}

	seen := make(map[string]struct{})
	var citations []domain.Citation
	for _, company := range companies {
		conns, err := s.connectionsAt(ctx, reader, company)
		if err != nil {
			return nil, err
		}
		for _, c := range connectionCitations(conns, maxListedConnections) {
			if _, ok := seen[c.RecordID]; ok {
				continue
			}
			seen[c.RecordID] = struct{}{}
			c.Snippet = strings.TrimSpace("Company match: " + company + "\n" + c.Snippet)
			citations = append(citations, c)
		}
	}
	if len(citations) == 0 {
		return &domain.Answer{Text: fmt.Sprintf("No connections found for %s.", list)}, nil
	}
	if len(citations) > maxListedConnections {
		citations = citations[:maxListedConnections]
	}
	return &domain.Answer{
		Text:      fmt.Sprintf("Here are connections whose current company matches any of: %s.", list),
		Citations: citations,
	}, nil
}

// countAtAllCompanies counts connections matching every listed company.
func (s *Synthesizer) countAtAllCompanies(ctx context.Context, reader driven.IndexReader, companies []string) (int, error) {
	var common map[string]struct{}
	for _, company := range companies {
		conns, err := s.connectionsAt(ctx, reader, company)
		if err != nil {
			return 0, err
		}
		ids := make(map[string]struct{}, len(conns))
		for _, c := range conns {
			ids[c.ID] = struct{}{}
		}
		if common == nil {
			common = ids
			continue
		}
		for id := range common {
			if _, ok := ids[id]; !ok {
				delete(common, id)
			}
		}
	}
	return len(common), nil
}

// engagementAnswer stands in for interaction metrics the export does
// not carry: recent connections are the closest available proxy.
func (s *Synthesizer) engagementAnswer(ctx context.Context, reader driven.IndexReader) (*domain.Answer, error) {
	conns, err := reader.ListByKind(ctx, domain.KindConnection)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return &domain.Answer{
		Text: "Your export does not include interaction counts, so engagement can't be measured directly." +
			" Here are your most recently added connections as a nearby proxy.",
		Citations: connectionCitations(withTimestamps(conns), maxListedConnections),
	}, nil
}

// referralAnswer lists connections who could refer at the company.
func (s *Synthesizer) referralAnswer(ctx context.Context, reader driven.IndexReader, company string) (*domain.Answer, error) {
	conns, err := s.connectionsAt(ctx, reader, company)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return &domain.Answer{Text: fmt.Sprintf("No connections found for %s.", company)}, nil
	}
	return &domain.Answer{
		Text:      fmt.Sprintf("Here are connections who could refer you at %s.", company),
		Citations: connectionCitations(conns, maxListedConnections),
	}, nil
}

// sourceCountAnswer answers "how many X" via per-source record counts.
func (s *Synthesizer) sourceCountAnswer(ctx context.Context, reader driven.IndexReader, source string) (*domain.Answer, error) {
	counts, err := reader.CountBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting by source: %w", err)
	}

	total := 0
	found := false
	for file, n := range counts {
		if file == source || strings.HasSuffix(file, "/"+source) {
			total += n
			found = true
		}
	}
	if !found {
		return &domain.Answer{Text: fmt.Sprintf("I couldn't find any rows for %s.", source)}, nil
	}
	return &domain.Answer{Text: fmt.Sprintf("There are %d rows in %s.", total, source)}, nil
}

// recentConnectionsAnswer lists the newest connections.
func (s *Synthesizer) recentConnectionsAnswer(ctx context.Context, reader driven.IndexReader) (*domain.Answer, error) {
	conns, err := reader.ListByKind(ctx, domain.KindConnection)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	dated := withTimestamps(conns)
	if len(dated) == 0 {
		return &domain.Answer{Text: "No dated connections were found in your archive."}, nil
	}
	return &domain.Answer{
		Text:      "Here are your most recently added connections.",
		Citations: connectionCitations(dated, maxListedConnections),
	}, nil
}

// recentByCompanyAnswer lists the newest connections at one company.
func (s *Synthesizer) recentByCompanyAnswer(ctx context.Context, reader driven.IndexReader, company string) (*domain.Answer, error) {
	conns, err := s.connectionsAt(ctx, reader, company)
	if err != nil {
		return nil, err
	}

	dated := withTimestamps(conns)
	if len(dated) == 0 {
		return &domain.Answer{Text: fmt.Sprintf("No recent connections found for %s.", company)}, nil
	}
	return &domain.Answer{
		Text:      fmt.Sprintf("Here are your most recently added connections at %s.", company),
		Citations: connectionCitations(dated, 5),
	}, nil
}

// connectionsAt filters connections by company. Field match first;
// when nothing matches, fall back to a plain text search so companies
// mentioned only in free text still surface.
func (s *Synthesizer) connectionsAt(ctx context.Context, reader driven.IndexReader, company string) ([]domain.Record, error) {
	conns, err := reader.ListByKind(ctx, domain.KindConnection)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	needle := strings.ToLower(company)
	var matched []domain.Record
	for _, c := range conns {
		if strings.Contains(strings.ToLower(c.Field("Company")), needle) {
			matched = append(matched, c)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}

	for _, c := range conns {
		if strings.Contains(strings.ToLower(c.Text), needle) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// withTimestamps filters to dated records, newest first.
func withTimestamps(records []domain.Record) []domain.Record {
	var dated []domain.Record
	for _, r := range records {
		if r.Timestamp != nil {
			dated = append(dated, r)
		}
	}
	sort.Slice(dated, func(i, j int) bool {
		if !dated[i].Timestamp.Equal(*dated[j].Timestamp) {
			return dated[i].Timestamp.After(*dated[j].Timestamp)
		}
		return dated[i].Row < dated[j].Row
	})
	return dated
}

// connectionCitations builds citations with position/company snippets.
func connectionCitations(records []domain.Record, limit int) []domain.Citation {
	if len(records) > limit {
		records = records[:limit]
	}

	citations := make([]domain.Citation, 0, len(records))
	for _, rec := range records {
		var parts []string
		for _, field := range []string{"Position", "Company", "Connected On", "URL"} {
			if v := rec.Field(field); v != "" {
				parts = append(parts, field+": "+v)
			}
		}
		snippet := strings.Join(parts, "\n")
		if snippet == "" {
			snippet = snippetOf(rec)
		}
		citations = append(citations, citationFor(rec, snippet))
	}
	return citations
}

func citationFor(rec domain.Record, snippet string) domain.Citation {
	return domain.Citation{
		SourceFile: rec.SourceFile,
		RecordID:   rec.ID,
		Row:        rec.Row,
		Title:      rec.Title,
		Snippet:    snippet,
	}
}

// snippetOf returns a short single-paragraph excerpt of the record.
func snippetOf(rec domain.Record) string {
	text := strings.TrimSpace(rec.Text)
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

func isCountQuestion(lowered string) bool {
	return countPattern.MatchString(lowered)
}

// inferSource finds the longest alias mentioned in the question.
func inferSource(lowered string) string {
	best := ""
	bestLen := 0
	for alias, source := range sourceAliases {
		if len(alias) > bestLen && strings.Contains(lowered, alias) {
			best = source
			bestLen = len(alias)
		}
	}
	return best
}

// parseCompany extracts the company from "connections at X" phrasing.
func parseCompany(question string) string {
	m := companyPattern.FindStringSubmatch(question)
	if m == nil {
		return ""
	}
	return cleanCompany(m[1])
}

// parseCompanyList extracts a multi-company list from "connections at
// A and B" phrasing. requireAll is true when the question asks for
// connections at both companies rather than either.
func parseCompanyList(question string) (companies []string, requireAll bool) {
	lowered := strings.ToLower(question)
	if !strings.Contains(lowered, "connection") || !strings.Contains(lowered, " at ") {
		return nil, false
	}
	m := companyListPattern.FindStringSubmatch(question)
	if m == nil {
		return nil, false
	}

	blob := strings.TrimSpace(m[1])
	requireAll = bothWordPattern.MatchString(blob) && !eitherWordPattern.MatchString(blob)
	for _, part := range companySplitPattern.Split(blob, -1) {
		cleaned := cleanCompany(leadingGroupWord.ReplaceAllString(strings.TrimSpace(part), ""))
		if cleaned != "" {
			companies = append(companies, cleaned)
		}
	}
	return companies, requireAll
}

func isEngagementQuestion(lowered string) bool {
	return containsAny(lowered, "engage", "interaction", "interact", "talk to") &&
		containsAny(lowered, "most", "top")
}

// parseReferralCompany extracts the company from referral questions.
func parseReferralCompany(question string) string {
	if !strings.Contains(strings.ToLower(question), "refer") {
		return ""
	}
	if m := referralPattern.FindStringSubmatch(question); m != nil {
		return cleanCompany(m[1])
	}
	if m := referralAtPattern.FindStringSubmatch(question); m != nil {
		return cleanCompany(m[1])
	}
	return ""
}

func cleanCompany(raw string) string {
	company := strings.TrimSpace(raw)
	company = strings.Trim(company, `"'`)
	return strings.TrimSpace(company)
}

// parseArticleDays extracts the window from "articles in the last N
// days"; "last month" maps to 30.
func parseArticleDays(lowered string) int {
	if m := articleDaysPattern.FindStringSubmatch(lowered); m != nil {
		var days int
		if _, err := fmt.Sscanf(m[1], "%d", &days); err == nil {
			return days
		}
	}
	if strings.Contains(lowered, "last month") {
		return 30
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
