package callsession

// SessionStats is a pure read-side aggregation over a stored session.
type SessionStats struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`

	DurationSeconds int `json:"duration"`

	TotalMessages     int `json:"total_messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`

	// AverageResponseTimeSeconds is nil when no assistant reply was timed.
	AverageResponseTimeSeconds *float64 `json:"average_response_time,omitempty"`
	ResponseTimeEntries        int      `json:"total_response_time_entries"`
}

// ComputeStats derives stats from a session snapshot. It never mutates.
func ComputeStats(s CallSession) SessionStats {
	st := SessionStats{
		SessionID:           s.ID,
		Status:              s.Status,
		DurationSeconds:     s.DurationSeconds,
		TotalMessages:       len(s.Transcript),
		ResponseTimeEntries: len(s.ResponseTimes),
	}

	for _, e := range s.Transcript {
		switch e.Role {
		case RoleUser:
			st.UserMessages++
		case RoleAssistant:
			st.AssistantMessages++
		}
	}

	if len(s.ResponseTimes) > 0 {
		var total float64
		for _, rt := range s.ResponseTimes {
			total += rt.ResponseTimeSeconds
		}
		avg := total / float64(len(s.ResponseTimes))
		st.AverageResponseTimeSeconds = &avg
	}

	return st
}
