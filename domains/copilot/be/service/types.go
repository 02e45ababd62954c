package service

import (
	"encoding/json"

	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
)

// Data kinds handled by the services. The sync job reports outcomes per kind.
const (
	KindUsage   = "usage"
	KindSeats   = "seats"
	KindMetrics = "metrics"
)

// UsageBreakdown is the per-language/per-editor slice of one usage day.
type UsageBreakdown struct {
	Language         string `json:"language"`
	Editor           string `json:"editor"`
	SuggestionsCount int64  `json:"suggestions_count"`
	AcceptancesCount int64  `json:"acceptances_count"`
	LinesSuggested   int64  `json:"lines_suggested"`
	LinesAccepted    int64  `json:"lines_accepted"`
	ActiveUsers      int64  `json:"active_users"`
}

// UsageDay is one persisted day of usage totals for a tenant.
type UsageDay struct {
	Day                   string           `json:"day"`
	TotalSuggestionsCount int64            `json:"total_suggestions_count"`
	TotalAcceptancesCount int64            `json:"total_acceptances_count"`
	TotalLinesSuggested   int64            `json:"total_lines_suggested"`
	TotalLinesAccepted    int64            `json:"total_lines_accepted"`
	TotalActiveUsers      int64            `json:"total_active_users"`
	TotalChatAcceptances  int64            `json:"total_chat_acceptances"`
	TotalChatTurns        int64            `json:"total_chat_turns"`
	TotalActiveChatUsers  int64            `json:"total_active_chat_users"`
	Breakdown             []UsageBreakdown `json:"breakdown"`
}

// SeatRecord is one assigned Copilot seat. The roster is a point-in-time
// total, not a time series; each save replaces it wholesale.
type SeatRecord struct {
	Login                   string `json:"login"`
	UserID                  int64  `json:"id"`
	AssigningTeam           string `json:"assigning_team,omitempty"`
	PlanType                string `json:"plan_type,omitempty"`
	PendingCancellationDate string `json:"pending_cancellation_date,omitempty"`
	LastActivityAt          string `json:"last_activity_at,omitempty"`
	LastActivityEditor      string `json:"last_activity_editor,omitempty"`
	CreatedAt               string `json:"created_at,omitempty"`
	UpdatedAt               string `json:"updated_at,omitempty"`
}

// MetricsDay is one persisted day of the metrics series. Payload keeps the
// raw upstream object so serving does not lose breakdown detail.
type MetricsDay struct {
	Date              string          `json:"date"`
	TotalActiveUsers  int64           `json:"total_active_users"`
	TotalEngagedUsers int64           `json:"total_engaged_users"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

func usageFromUpstream(days []githubapi.UsageDay) []UsageDay {
	out := make([]UsageDay, 0, len(days))
	for _, d := range days {
		breakdown := make([]UsageBreakdown, 0, len(d.Breakdown))
		for _, b := range d.Breakdown {
			breakdown = append(breakdown, UsageBreakdown{
				Language:         b.Language,
				Editor:           b.Editor,
				SuggestionsCount: b.SuggestionsCount,
				AcceptancesCount: b.AcceptancesCount,
				LinesSuggested:   b.LinesSuggested,
				LinesAccepted:    b.LinesAccepted,
				ActiveUsers:      b.ActiveUsers,
			})
		}
		out = append(out, UsageDay{
			Day:                   d.Day,
			TotalSuggestionsCount: d.TotalSuggestionsCount,
			TotalAcceptancesCount: d.TotalAcceptancesCount,
			TotalLinesSuggested:   d.TotalLinesSuggested,
			TotalLinesAccepted:    d.TotalLinesAccepted,
			TotalActiveUsers:      d.TotalActiveUsers,
			TotalChatAcceptances:  d.TotalChatAcceptances,
			TotalChatTurns:        d.TotalChatTurns,
			TotalActiveChatUsers:  d.TotalActiveChatUsers,
			Breakdown:             breakdown,
		})
	}
	return out
}

func seatsFromUpstream(seats []githubapi.Seat) []SeatRecord {
	out := make([]SeatRecord, 0, len(seats))
	for _, s := range seats {
		if s.Assignee.Login == "" {
			continue
		}
		out = append(out, SeatRecord{
			Login:                   s.Assignee.Login,
			UserID:                  s.Assignee.ID,
			AssigningTeam:           s.AssigningTeam.Slug,
			PlanType:                s.PlanType,
			PendingCancellationDate: s.PendingCancellationDate,
			LastActivityAt:          s.LastActivityAt,
			LastActivityEditor:      s.LastActivityEditor,
			CreatedAt:               s.CreatedAt,
			UpdatedAt:               s.UpdatedAt,
		})
	}
	return out
}

func metricsFromUpstream(days []githubapi.MetricsDay) []MetricsDay {
	out := make([]MetricsDay, 0, len(days))
	for _, d := range days {
		out = append(out, MetricsDay{
			Date:              d.Date,
			TotalActiveUsers:  d.TotalActiveUsers,
			TotalEngagedUsers: d.TotalEngagedUsers,
			Payload:           d.Payload,
		})
	}
	return out
}
