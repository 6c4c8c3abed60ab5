package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/concierge/internal/usage"
)

// UsageSummarizer is the read side of the usage ledger.
type UsageSummarizer interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByPurpose(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// RegisterUsageTools adds the privileged usageSummary tool, letting an
// operator ask how much reasoning the assistant has consumed. loc sets
// where "today" begins.
func RegisterUsageTools(r *Registry, store UsageSummarizer, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	r.Register(&Tool{
		Name:        "usageSummary",
		Description: "Summarize reasoning token usage for a period, optionally grouped by pipeline stage or model.",
		Parameters: schema(map[string]any{
			"period": map[string]any{
				"type":        "string",
				"enum":        []string{"today", "yesterday", "week", "month"},
				"description": "Time period to summarize.",
			},
			"groupBy": map[string]any{
				"type":        "string",
				"enum":        []string{"purpose", "model"},
				"description": "Optional breakdown.",
			},
		}, "period"),
		Privileged: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			period := argString(args, "period")
			start, end, err := parsePeriod(period, time.Now().In(loc))
			if err != nil {
				return "", err
			}

			total, err := store.Summary(ctx, start, end)
			if err != nil {
				return "", fmt.Errorf("query usage summary: %w", err)
			}
			out := map[string]any{
				"period": period,
				"from":   start.Format(time.RFC3339),
				"to":     end.Format(time.RFC3339),
				"total":  total,
			}

			var grouped map[string]*usage.Summary
			switch groupBy := argString(args, "groupBy"); groupBy {
			case "":
			case "purpose":
				grouped, err = store.SummaryByPurpose(ctx, start, end)
			case "model":
				grouped, err = store.SummaryByModel(ctx, start, end)
			default:
				return "", fmt.Errorf("unknown groupBy %q (expected purpose or model)", groupBy)
			}
			if err != nil {
				return "", fmt.Errorf("query grouped usage: %w", err)
			}
			if grouped != nil {
				out["groups"] = grouped
			}
			return jsonResult(out)
		},
	})
}

// parsePeriod converts a period name to a [start, end) range ending at
// now.
func parsePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case "today", "":
		return midnight, now, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), midnight, nil
	case "week":
		return now.AddDate(0, 0, -7), now, nil
	case "month":
		return now.AddDate(0, -1, 0), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}
