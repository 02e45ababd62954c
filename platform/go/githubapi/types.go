package githubapi

import "encoding/json"

// Wire shapes for the Copilot endpoints. Only the fields the stores persist
// are decoded; metrics additionally keeps the raw payload because the nested
// breakdown schema is still evolving upstream.

// UsageDay is one element of the copilot/usage response.
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

// UsageBreakdown is the per-language/per-editor slice of a usage day.
type UsageBreakdown struct {
	Language         string `json:"language"`
	Editor           string `json:"editor"`
	SuggestionsCount int64  `json:"suggestions_count"`
	AcceptancesCount int64  `json:"acceptances_count"`
	LinesSuggested   int64  `json:"lines_suggested"`
	LinesAccepted    int64  `json:"lines_accepted"`
	ActiveUsers      int64  `json:"active_users"`
}

// Seat is one element of the copilot/billing/seats response.
type Seat struct {
	CreatedAt               string `json:"created_at"`
	UpdatedAt               string `json:"updated_at"`
	PendingCancellationDate string `json:"pending_cancellation_date"`
	LastActivityAt          string `json:"last_activity_at"`
	LastActivityEditor      string `json:"last_activity_editor"`
	PlanType                string `json:"plan_type"`
	Assignee                struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	} `json:"assignee"`
	AssigningTeam struct {
		Slug string `json:"slug"`
	} `json:"assigning_team"`
}

type seatsPage struct {
	TotalSeats int64  `json:"total_seats"`
	Seats      []Seat `json:"seats"`
}

// MetricsDay is one element of the copilot/metrics response. Payload carries
// the full upstream object for that day.
type MetricsDay struct {
	Date              string          `json:"date"`
	TotalActiveUsers  int64           `json:"total_active_users"`
	TotalEngagedUsers int64           `json:"total_engaged_users"`
	Payload           json.RawMessage `json:"-"`
}
