package vaccination

import "time"

// Stage is where a vaccination visit is in the workflow.
type Stage string

const (
	StagePreScreening Stage = "pre-screening"
	StageInjection    Stage = "injection"
	StageFollowUp     Stage = "follow-up"
	StageCompleted    Stage = "completed"
	StageDeferred     Stage = "deferred"
	StageCancelled    Stage = "cancelled"
)

// Screening is the doctor's pre-vaccination check.
type Screening struct {
	TemperatureC float64 `json:"temperatureC"`
	SystolicBP   int     `json:"systolicBp,omitempty"`
	DiastolicBP  int     `json:"diastolicBp,omitempty"`
	WeightKg     float64 `json:"weightKg,omitempty"`
	Eligible     bool    `json:"eligible"`
	DeferReason  string  `json:"deferReason,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	ScreenedBy   string  `json:"screenedBy,omitempty"`
}

// Injection records the dose given.
type Injection struct {
	VaccineCode string    `json:"vaccineCode"`
	LotNumber   string    `json:"lotNumber"`
	DoseNumber  int       `json:"doseNumber"`
	Site        string    `json:"site"`
	GivenAt     time.Time `json:"givenAt"`
	GivenBy     string    `json:"givenBy,omitempty"`
}

// FollowUp is the post-injection observation.
type FollowUp struct {
	ObservedMinutes int    `json:"observedMinutes"`
	Reaction        string `json:"reaction,omitempty"`
	Severe          bool   `json:"severe"`
	Notes           string `json:"notes,omitempty"`
}

// Visit is one patient's pass through the vaccination workflow.
type Visit struct {
	ID        string     `json:"id,omitempty"`
	PatientID string     `json:"patientId"`
	TicketID  string     `json:"ticketId,omitempty"`
	Stage     Stage      `json:"stage"`
	Screening *Screening `json:"screening,omitempty"`
	Injection *Injection `json:"injection,omitempty"`
	FollowUp  *FollowUp  `json:"followUp,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}
