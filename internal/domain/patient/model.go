package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Care pathways. The empty string means no pathway has been assigned.
const (
	PathwayNone             = ""
	PathwayActiveMonitoring = "Active Monitoring"
	PathwayMedication       = "Medication"
	PathwaySurgery          = "Surgery Pathway"
	PathwayPostOp           = "Post-op Followup"
	PathwayDischarge        = "Discharge"
)

// Patient statuses.
const (
	StatusActive     = "Active"
	StatusInactive   = "Inactive"
	StatusDischarged = "Discharged"
)

// Genders.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
)

// Patient maps to the patient table. Only the fields the pathway engine reads
// are modelled; demographics live with the record-keeping service.
type Patient struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	DateOfBirth          time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Gender               string     `db:"gender" json:"gender"`
	InitialPSA           *float64   `db:"initial_psa" json:"initial_psa,omitempty"`
	InitialPSADate       *time.Time `db:"initial_psa_date" json:"initial_psa_date,omitempty"`
	CarePathway          string     `db:"care_pathway" json:"care_pathway"`
	CarePathwayUpdatedAt *time.Time `db:"care_pathway_updated_at" json:"care_pathway_updated_at,omitempty"`
	AssignedUrologistID  *uuid.UUID `db:"assigned_urologist_id" json:"assigned_urologist_id,omitempty"`
	// AssignedUrologist is the legacy free-text clinician name. It is only
	// read by the one-time backfill that populates AssignedUrologistID.
	AssignedUrologist *string   `db:"assigned_urologist" json:"-"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// AgeAt returns the patient's age in whole years on the given date.
func (p *Patient) AgeAt(t time.Time) int {
	return YearsBetween(p.DateOfBirth, t)
}

// PSA returns the initial PSA and whether one is recorded.
func (p *Patient) PSA() (float64, bool) {
	if p.InitialPSA == nil {
		return 0, false
	}
	return *p.InitialPSA, true
}

// YearsBetween counts full years from birth to t, not counting the current
// year until the birthday has been reached.
func YearsBetween(birth, t time.Time) int {
	years := t.Year() - birth.Year()
	if t.Month() < birth.Month() || (t.Month() == birth.Month() && t.Day() < birth.Day()) {
		years--
	}
	return years
}

// Investigation statuses.
const (
	InvestigationRequested = "requested"
	InvestigationScheduled = "scheduled"
	InvestigationCompleted = "completed"
	InvestigationCancelled = "cancelled"
)

// Kind identifies a family of investigations by test type or name.
type Kind string

const (
	KindPSA    Kind = "PSA"
	KindMRI    Kind = "MRI"
	KindBiopsy Kind = "BIOPSY"
)

// Investigation maps to the investigation_result table (append-only).
type Investigation struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	TestType   string    `db:"test_type" json:"test_type"`
	TestName   string    `db:"test_name" json:"test_name"`
	TestDate   time.Time `db:"test_date" json:"test_date"`
	Status     string    `db:"status" json:"status"`
	ResultFlag *string   `db:"result_flag" json:"result_flag,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Is reports whether the test type or name mentions the kind.
func (i *Investigation) Is(k Kind) bool {
	kind := string(k)
	return strings.Contains(strings.ToUpper(i.TestType), kind) ||
		strings.Contains(strings.ToUpper(i.TestName), kind)
}

func (i *Investigation) Completed() bool { return i.Status == InvestigationCompleted }

// Abnormal reports an abnormal or high result flag.
func (i *Investigation) Abnormal() bool {
	if i.ResultFlag == nil {
		return false
	}
	switch strings.ToLower(*i.ResultFlag) {
	case "abnormal", "high":
		return true
	}
	return false
}

// Investigations is a patient's investigation history, newest first.
type Investigations []*Investigation

// Latest returns the newest investigation of kind matching the filter, or nil.
func (inv Investigations) Latest(k Kind, completedOnly bool) *Investigation {
	var latest *Investigation
	for _, i := range inv {
		if !i.Is(k) || i.Status == InvestigationCancelled {
			continue
		}
		if completedOnly && !i.Completed() {
			continue
		}
		if latest == nil || i.TestDate.After(latest.TestDate) {
			latest = i
		}
	}
	return latest
}

// Any reports whether any non-cancelled investigation of kind satisfies match.
func (inv Investigations) Any(k Kind, match func(*Investigation) bool) bool {
	for _, i := range inv {
		if i.Is(k) && i.Status != InvestigationCancelled && match(i) {
			return true
		}
	}
	return false
}

// LastPSADate returns the most recent completed PSA from history, falling back
// to the patient's initial PSA date.
func LastPSADate(p *Patient, inv Investigations) *time.Time {
	if last := inv.Latest(KindPSA, true); last != nil {
		d := last.TestDate
		return &d
	}
	return p.InitialPSADate
}

// MDT meeting statuses.
const (
	MDTScheduled = "scheduled"
	MDTCompleted = "completed"
)

// MDTMeeting maps to the mdt_meeting table.
type MDTMeeting struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	MeetingDate time.Time `db:"meeting_date" json:"meeting_date"`
	Status      string    `db:"status" json:"status"`
}

// DischargeSummary maps to the discharge_summary table. Deletion is soft.
type DischargeSummary struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	IsDeleted bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
