package events

// Filter is one client's view of the event stream. Fields combine with
// AND semantics; the zero value matches every event.
type Filter struct {
	// ProjectID restricts the stream to events carrying this project id.
	ProjectID string

	// TaskID matches events whose task id or parent task id equals this
	// value, so filtering on a root task also captures its subtask events.
	TaskID string

	// Types is an allow-list of event types. Empty admits all types.
	Types []string

	// StatsOnly restricts the stream to stats_snapshot and
	// queue_depth_update events.
	StatsOnly bool
}

// Matches reports whether the event passes the filter.
func (f *Filter) Matches(evt *Event) bool {
	if f.StatsOnly && !IsStatsType(evt.EventType) {
		return false
	}
	if f.ProjectID != "" && evt.ProjectID != f.ProjectID {
		return false
	}
	if f.TaskID != "" && evt.TaskID != f.TaskID && evt.ParentTaskID != f.TaskID {
		return false
	}
	if len(f.Types) > 0 {
		allowed := false
		for _, t := range f.Types {
			if evt.EventType == t {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}
