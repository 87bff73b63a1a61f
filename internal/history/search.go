package history

import (
	"context"
	"strings"
	"unicode"
)

type Match struct {
	ID      int64  `json:"id"`
	Field   string `json:"field"`
	Line    int    `json:"line"`
	Preview string `json:"preview"`
}

type SearchResponse struct {
	Query     string  `json:"query"`
	Results   []Match `json:"results"`
	Truncated bool    `json:"truncated"`
}

// Search is a fixed-string match over questions and answers with smart-case:
// a query with an uppercase letter matches case-sensitively. Results come
// newest entry first, one per matching line.
func (s *Store) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResponse{Query: query, Results: nil, Truncated: false}, nil
	}
	if limit <= 0 {
		limit = 200
	}

	entries, err := s.List(ctx, MaxEntries)
	if err != nil {
		return SearchResponse{}, err
	}

	m := newMatcher(query)
	resp := SearchResponse{Query: query, Results: make([]Match, 0, 16)}
	for _, e := range entries {
		for _, f := range []struct{ name, text string }{
			{"question", e.Question},
			{"answer", e.Answer},
		} {
			for i, line := range strings.Split(f.text, "\n") {
				line = strings.TrimRight(line, "\r")
				if line == "" || !m.match(line) {
					continue
				}
				resp.Results = append(resp.Results, Match{ID: e.ID, Field: f.name, Line: i + 1, Preview: line})
				if len(resp.Results) >= limit {
					resp.Truncated = true
					return resp, nil
				}
			}
		}
	}
	return resp, nil
}

type matcher struct {
	query         string
	caseSensitive bool
}

func newMatcher(query string) matcher {
	m := matcher{query: query}
	for _, r := range query {
		if unicode.IsUpper(r) {
			m.caseSensitive = true
			break
		}
	}
	if !m.caseSensitive {
		m.query = strings.ToLower(query)
	}
	return m
}

func (m matcher) match(line string) bool {
	if m.caseSensitive {
		return strings.Contains(line, m.query)
	}
	return strings.Contains(strings.ToLower(line), m.query)
}
