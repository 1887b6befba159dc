// Package enrich gathers web search context about a company.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analyst/pkg/brave"
)

// Unavailable is returned when no query reached the web.
const Unavailable = "⚠️ Web enrichment unavailable (no BRAVE_API_KEY). Analysis based on provided input only.\n"

// Fallback replaces enrichment when the collaborator itself fails.
const Fallback = "Web search unavailable."

// DefaultResultsPerQuery is how many hits each query keeps.
const DefaultResultsPerQuery = 3

// Enricher is the Web Enrichment Collaborator. Enrich never fails: on any
// internal problem it returns Unavailable.
type Enricher interface {
	Enrich(ctx context.Context, companyName string) string
}

// Searcher enriches via Brave web search.
type Searcher struct {
	client  brave.Client
	perQ    int
	nowFunc func() time.Time
}

// New creates a Searcher. A nil client always yields Unavailable.
func New(client brave.Client, resultsPerQuery int) *Searcher {
	if resultsPerQuery <= 0 {
		resultsPerQuery = DefaultResultsPerQuery
	}
	return &Searcher{client: client, perQ: resultsPerQuery, nowFunc: time.Now}
}

// Queries returns the searches run for companyName, in output order.
func (s *Searcher) Queries(companyName string) []string {
	return []string{
		companyName + " company overview business model",
		companyName + " financial results revenue",
		companyName + " competitors market analysis",
		fmt.Sprintf("%s recent news %d", companyName, s.nowFunc().Year()),
	}
}

type outcome struct {
	results []brave.Result
	ok      bool
}

// Enrich runs every query concurrently and renders a markdown digest.
func (s *Searcher) Enrich(ctx context.Context, companyName string) string {
	if s.client == nil {
		return Unavailable
	}
	queries := s.Queries(companyName)
	outcomes := make([]outcome, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("enrich: panic during search", zap.String("query", q), zap.Any("panic", r))
				}
			}()
			results, err := s.client.Search(gctx, q, s.perQ)
			if err != nil {
				zap.L().Warn("enrich: search failed", zap.String("query", q), zap.Error(err))
				return nil
			}
			outcomes[i] = outcome{results: results, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	return render(queries, outcomes)
}

func render(queries []string, outcomes []outcome) string {
	fromWeb := false
	var b strings.Builder
	b.WriteString("## Web Research Results\n\n")
	for i, q := range queries {
		if outcomes[i].ok {
			fromWeb = true
		}
		b.WriteString("### Search: \"" + q + "\"\n")
		for _, r := range outcomes[i].results {
			b.WriteString("- **")
			b.WriteString(r.Title)
			b.WriteString("**")
			if r.URL != "" {
				fmt.Fprintf(&b, " ([link](%s))", r.URL)
			}
			b.WriteString(": ")
			b.WriteString(r.Description)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if !fromWeb {
		return Unavailable
	}
	return b.String()
}

var _ Enricher = (*Searcher)(nil)
