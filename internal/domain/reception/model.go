package reception

import "time"

type Patient struct {
	ID             string    `json:"id,omitempty"`
	Code           string    `json:"code,omitempty"`
	FullName       string    `json:"fullName"`
	DateOfBirth    string    `json:"dateOfBirth"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone,omitempty"`
	IdentityNumber string    `json:"identityNumber,omitempty"`
	Address        string    `json:"address,omitempty"`
	GuardianName   string    `json:"guardianName,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// TicketKind is the queue a reception ticket joins.
type TicketKind string

const (
	KindExamination TicketKind = "examination"
	KindVaccination TicketKind = "vaccination"
)

// TicketStatus is a reception ticket's position in the queue.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "waiting"
	TicketCalled    TicketStatus = "called"
	TicketDone      TicketStatus = "done"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is a patient's place in a reception queue.
type Ticket struct {
	ID        string       `json:"id,omitempty"`
	PatientID string       `json:"patientId"`
	Number    int          `json:"number,omitempty"`
	Kind      TicketKind   `json:"kind"`
	Status    TicketStatus `json:"status,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"createdAt,omitempty"`
}
