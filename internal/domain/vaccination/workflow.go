package vaccination

// transitions is the vaccination workflow. Completed, deferred and cancelled
// are terminal.
var transitions = map[Stage][]Stage{
	StagePreScreening: {StageInjection, StageDeferred, StageCancelled},
	StageInjection:    {StageFollowUp, StageCancelled},
	StageFollowUp:     {StageCompleted},
}

// CanTransition reports whether a visit may move from one stage to another.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no stage follows s.
func Terminal(s Stage) bool {
	return len(transitions[s]) == 0
}

// ScreenPath is the console screen that handles a visit at stage s, or "" for
// terminal stages.
func ScreenPath(s Stage) string {
	switch s {
	case StagePreScreening:
		return "/vaccination/pre-screening"
	case StageInjection:
		return "/vaccination/injection"
	case StageFollowUp:
		return "/vaccination/follow-up"
	default:
		return ""
	}
}
