package pipeline

import (
	"sort"

	"github.com/fablepress/backend/internal/domain"
)

// Transitions is the full set of legal status moves. Every status write in
// the pipeline is a compare-and-set against one of these edges; anything
// else is a stale or duplicate event and becomes a no-op.
var Transitions = map[domain.Status][]domain.Status{
	domain.StatusPendingAnalysis: {
		domain.StatusAnalyzing,
	},
	domain.StatusAnalyzing: {
		domain.StatusAnalyzingCompleted,
		domain.StatusAnalysisFailed,
	},
	domain.StatusAnalyzingCompleted: {
		domain.StatusConfirmed,
		domain.StatusPrepayPending,
		domain.StatusPendingAnalysis, // photo replacement
	},
	domain.StatusConfirmed: {
		domain.StatusPrepayPending,
		domain.StatusPendingAnalysis,
	},
	domain.StatusPrepayPending: {
		domain.StatusPrepayGenerating,
	},
	domain.StatusPrepayGenerating: {
		domain.StatusPrepayReady,
		domain.StatusGenerationFailed,
	},
	domain.StatusPrepayReady: {
		domain.StatusPrepayPending, // regenerate preview
		domain.StatusPostpayPending,
		domain.StatusPendingAnalysis,
	},
	domain.StatusPostpayPending: {
		domain.StatusPostpayGenerating,
	},
	domain.StatusPostpayGenerating: {
		domain.StatusCompleted,
		domain.StatusGenerationFailed,
	},
	domain.StatusAnalysisFailed: {
		domain.StatusPendingAnalysis,
	},
	domain.StatusGenerationFailed: {
		domain.StatusPendingAnalysis,
		domain.StatusPrepayPending,  // explicit retry
		domain.StatusPostpayPending, // only after prepay finals exist
	},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to domain.Status) bool {
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourceStatuses returns every status with a legal edge into target, in a
// stable order. The service derives its compare-and-set from-sets here so
// the map above stays the single definition of the state machine.
func sourceStatuses(target domain.Status) []domain.Status {
	var out []domain.Status
	for from, targets := range Transitions {
		for _, to := range targets {
			if to == target {
				out = append(out, from)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// generationPending returns the pending status for a stage.
func generationPending(stage domain.Stage) domain.Status {
	if stage == domain.StagePrepay {
		return domain.StatusPrepayPending
	}
	return domain.StatusPostpayPending
}

// generationActive returns the generating status for a stage.
func generationActive(stage domain.Stage) domain.Status {
	if stage == domain.StagePrepay {
		return domain.StatusPrepayGenerating
	}
	return domain.StatusPostpayGenerating
}

// generationDone returns the status a finished stage lands in.
func generationDone(stage domain.Stage) domain.Status {
	if stage == domain.StagePrepay {
		return domain.StatusPrepayReady
	}
	return domain.StatusCompleted
}
