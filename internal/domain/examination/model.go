package examination

import "time"

// OrderStatus tracks an examination order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in-progress"
	OrderResulted   OrderStatus = "resulted"
	OrderCancelled  OrderStatus = "cancelled"
)

// Order requests one or more examination services for a patient.
type Order struct {
	ID         string      `json:"id,omitempty"`
	PatientID  string      `json:"patientId"`
	TicketID   string      `json:"ticketId,omitempty"`
	Services   []string    `json:"services"`
	Priority   string      `json:"priority,omitempty"`
	Status     OrderStatus `json:"status,omitempty"`
	OrderedBy  string      `json:"orderedBy,omitempty"`
	Indication string      `json:"indication,omitempty"`
	CreatedAt  time.Time   `json:"createdAt,omitempty"`
}

// Finding is one measured or observed item in a result.
type Finding struct {
	Code           string `json:"code"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"referenceRange,omitempty"`
	Abnormal       bool   `json:"abnormal"`
}

// Result is the doctor's report on an order.
type Result struct {
	OrderID    string    `json:"orderId"`
	Findings   []Finding `json:"findings"`
	Conclusion string    `json:"conclusion"`
	Advice     string    `json:"advice,omitempty"`
	ResultedBy string    `json:"resultedBy,omitempty"`
	ResultedAt time.Time `json:"resultedAt,omitempty"`
}

// HistoryEntry is one past examination in a patient's record.
type HistoryEntry struct {
	Order  Order   `json:"order"`
	Result *Result `json:"result,omitempty"`
}
