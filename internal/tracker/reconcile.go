package tracker

import (
	"fmt"
	"math"
	"strings"
)

// overallStatuses maps backend codes to an OverallStatus. Matching is exact;
// codes not listed here reconcile to StatusUnknown.
var overallStatuses = map[string]OverallStatus{
	"RUNNING":     StatusRunning,
	"IN_PROGRESS": StatusRunning,
	"ACTIVE":      StatusRunning,
	"PENDING":     StatusRunning,
	"COMPLETED":   StatusCompleted,
	"FAILED":      StatusFailed,
	"ERROR":       StatusError,
}

// statusSynonyms are the extra codes recognized by a lenient Reconciler.
var statusSynonyms = map[string]OverallStatus{
	"QUEUED":    StatusRunning,
	"ACCEPTED":  StatusRunning,
	"STARTED":   StatusRunning,
	"SUCCEEDED": StatusCompleted,
	"SUCCESS":   StatusCompleted,
	"CANCELLED": StatusFailed,
	"CANCELED":  StatusFailed,
}

// successPhases are the phase codes strict icons still render as success.
// Only COMPLETED counts unless the reconciler is lenient.
var successPhases = map[string]bool{
	"COMPLETED": true,
	"SUCCEEDED": true,
	"SUCCESS":   true,
	"DONE":      true,
	"SKIPPED":   true,
}

// Reconciler turns raw status payloads into view models.
// The zero value matches codes exactly and is ready to use.
type Reconciler struct {
	// StrictIcons renders phase codes outside the known set with IconUnknown
	// instead of IconSuccess.
	StrictIcons bool

	// LenientStatus normalizes codes (trimmed, upper-cased) before lookup
	// and also accepts synonyms such as SUCCEEDED or CANCELLED.
	LenientStatus bool
}

// Reconcile reconciles raw with the default (optimistic) icon mapping.
func Reconcile(raw RawStatus) ViewModel {
	return Reconciler{}.Reconcile(raw)
}

// Reconcile builds a ViewModel from raw. It never fails and never modifies raw.
func (r Reconciler) Reconcile(raw RawStatus) ViewModel {
	vm := ViewModel{
		Status:    r.Status(raw.Status),
		RawStatus: raw.Status,
		Duration:  formatDuration(raw.TotalOrchestrationTime),
		Message:   raw.Error,
	}

	if len(raw.PhaseResults) > 0 {
		vm.Phases = make([]PhaseView, 0, len(raw.PhaseResults))
		for _, p := range raw.PhaseResults {
			pv := PhaseView{
				Name:   p.Name,
				Status: p.Status,
				Icon:   r.icon(p.Status),
			}
			if p.ElapsedMs != nil {
				pv.Duration = formatDuration(p.ElapsedMs)
			}
			vm.Phases = append(vm.Phases, pv)
		}
	}

	return vm
}

// StatusOf maps a backend status code exactly.
func StatusOf(code string) OverallStatus {
	return Reconciler{}.Status(code)
}

// Status maps a backend status code using r's matching rules.
func (r Reconciler) Status(code string) OverallStatus {
	code = r.code(code)
	if s, ok := overallStatuses[code]; ok {
		return s
	}
	if r.LenientStatus {
		if s, ok := statusSynonyms[code]; ok {
			return s
		}
	}
	return StatusUnknown
}

func (r Reconciler) icon(status string) Icon {
	code := r.code(status)
	switch {
	case code == "FAILED":
		return IconError
	case code == "IN_PROGRESS" || code == "ACTIVE":
		return IconInProgress
	case r.StrictIcons && !r.successPhase(code):
		return IconUnknown
	default:
		return IconSuccess
	}
}

func (r Reconciler) successPhase(code string) bool {
	if r.LenientStatus {
		return successPhases[code]
	}
	return code == "COMPLETED"
}

func (r Reconciler) code(code string) string {
	if !r.LenientStatus {
		return code
	}
	return normalizeCode(code)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// formatDuration renders milliseconds as seconds with two decimals.
func formatDuration(ms *float64) string {
	var v float64
	if ms != nil && *ms > 0 && !math.IsNaN(*ms) && !math.IsInf(*ms, 0) {
		v = *ms
	}
	return fmt.Sprintf("%.2fs", v/1000)
}
