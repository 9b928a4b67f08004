package domain

// DashboardStats is the overview strip at the top of the dashboard.
// Times are minutes; availability and satisfaction are percentages.
type DashboardStats struct {
	PendingConversations  int     `json:"pendingConversations"`
	ActiveConversations   int     `json:"activeConversations"`
	ResolvedConversations int     `json:"resolvedConversations"`
	AverageResponseTime   float64 `json:"averageResponseTime"`
	AverageResolutionTime float64 `json:"averageResolutionTime"`
	CustomerSatisfaction  float64 `json:"customerSatisfaction"`
	AgentAvailability     float64 `json:"agentAvailability"`
}

// Activity is one entry of the recent activity feed.
type Activity struct {
	ID             ID        `json:"id"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	Timestamp      Timestamp `json:"timestamp"`
	Agent          string    `json:"agent,omitempty"`
	ConversationID ID        `json:"conversationId,omitempty"`
}

// Trend directions.
const (
	TrendUp   = "up"
	TrendDown = "down"
)

// Metric compares a figure with the previous period.
type Metric struct {
	Current    float64 `json:"current"`
	Previous   float64 `json:"previous"`
	Trend      string  `json:"trend,omitempty"`
	TrendValue float64 `json:"trendValue,omitempty"`
}

// ChangePercent returns the relative change from Previous to Current,
// or 0 when there is no previous figure.
func (m Metric) ChangePercent() float64 {
	if m.Previous == 0 {
		return 0
	}
	return (m.Current - m.Previous) / m.Previous * 100
}

// Performance is the period-over-period comparison panel.
type Performance struct {
	ResponseTime         Metric `json:"responseTime"`
	ResolutionRate       Metric `json:"resolutionRate"`
	CustomerSatisfaction Metric `json:"customerSatisfaction"`
	ConversationsHandled Metric `json:"conversationsHandled"`
}

// QueueTrends holds hourly samples, oldest first.
type QueueTrends struct {
	Queue    []int     `json:"queue"`
	WaitTime []float64 `json:"waitTime"`
}

// QueueMetrics describes the waiting line of unassigned conversations.
type QueueMetrics struct {
	CurrentQueue    int         `json:"currentQueue"`
	AverageWaitTime float64     `json:"averageWaitTime"`
	ServiceLevel    float64     `json:"serviceLevel"`
	Trends          QueueTrends `json:"trends"`
}

// AgentStats is one agent's row in the performance table.
type AgentStats struct {
	ID              ID      `json:"id"`
	Name            string  `json:"name"`
	Conversations   int     `json:"conversations"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	ResolutionRate  float64 `json:"resolutionRate"`
	Satisfaction    float64 `json:"satisfaction"`
}

// AgentPerformance is the per-agent breakdown for one reporting period.
type AgentPerformance struct {
	TotalConversations int          `json:"totalConversations"`
	ByAgent            []AgentStats `json:"byAgent"`
	PeriodLabel        string       `json:"periodLabel,omitempty"`
}

// ReportingPeriod is a selectable period for AgentPerformance.
type ReportingPeriod struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DefaultPeriod is the period the backend assumes when none is given.
const DefaultPeriod = "currentMonth"

// Dashboard is everything the dashboard page shows, fetched together.
type Dashboard struct {
	Stats       DashboardStats    `json:"stats"`
	Activities  []Activity        `json:"activities"`
	Performance Performance       `json:"performance"`
	Queue       QueueMetrics      `json:"queue"`
	Agents      AgentPerformance  `json:"agents"`
	Period      string            `json:"period"`
	Periods     []ReportingPeriod `json:"periods,omitempty"`
	FetchedAt   Timestamp         `json:"fetchedAt"`
}
