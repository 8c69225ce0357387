package pathway

import (
	"time"

	"github.com/urocare/pathway/internal/domain/patient"
)

// Facts is the slice of a patient's history the pathway checks evaluate.
type Facts struct {
	Patient              *patient.Patient
	Investigations       patient.Investigations
	CompletedMDTMeetings int
	DischargeSummaries   int
	CompletedSurgeries   int
}

// Intervals used by the PSA predicates.
const (
	PSAMonitoringWindowDays = 365
	PSARepeatIntervalDays   = 90
)

// MRICompleted holds when a completed MRI is on file. It gates both surgery
// and biopsy.
func MRICompleted(f *Facts) bool {
	return f.Investigations.Latest(patient.KindMRI, true) != nil
}

// MDTCompleted holds when at least one MDT meeting has been completed.
func MDTCompleted(f *Facts) bool { return f.CompletedMDTMeetings > 0 }

// BiopsyOnFile holds when any biopsy has been recorded.
func BiopsyOnFile(f *Facts) bool {
	return f.Investigations.Latest(patient.KindBiopsy, false) != nil
}

// DaysSinceLastPSA returns whole days since the last PSA, or false when none
// is known.
func DaysSinceLastPSA(f *Facts, now time.Time) (int, bool) {
	last := patient.LastPSADate(f.Patient, f.Investigations)
	if last == nil {
		return 0, false
	}
	return int(now.Sub(*last).Hours() / 24), true
}

// PSAWithin holds when the last PSA is no older than days.
func PSAWithin(f *Facts, now time.Time, days int) bool {
	since, ok := DaysSinceLastPSA(f, now)
	return ok && since <= days
}

// SurgeryCompleted holds when a surgery appointment has been completed.
func SurgeryCompleted(f *Facts) bool { return f.CompletedSurgeries > 0 }

// DischargeSummaryOnFile holds when a non-deleted discharge summary exists.
func DischargeSummaryOnFile(f *Facts) bool { return f.DischargeSummaries > 0 }
