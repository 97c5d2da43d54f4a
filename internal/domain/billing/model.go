package billing

import "time"

// InvoiceStatus is an invoice's lifecycle state.
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

// Line is one billed service or product. Amounts are in đồng, which has no
// minor unit.
type Line struct {
	Code            string `json:"code"`
	Description     string `json:"description"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unitPrice"`
	DiscountPercent int    `json:"discountPercent,omitempty"`
	InsuranceCover  int    `json:"insuranceCoverPercent,omitempty"`
}

// Amount is the line total before insurance.
func (l Line) Amount() int64 {
	gross := l.UnitPrice * int64(l.Quantity)
	return gross - gross*int64(l.DiscountPercent)/100
}

// Covered is the part of Amount paid by insurance.
func (l Line) Covered() int64 {
	return l.Amount() * int64(l.InsuranceCover) / 100
}

// Invoice bills a patient for a visit.
type Invoice struct {
	ID        string        `json:"id,omitempty"`
	Number    string        `json:"number,omitempty"`
	PatientID string        `json:"patientId"`
	Lines     []Line        `json:"lines"`
	Status    InvoiceStatus `json:"status,omitempty"`
	Subtotal  int64         `json:"subtotal"`
	Discount  int64         `json:"discount"`
	Insurance int64         `json:"insurance"`
	Total     int64         `json:"total"`
	Paid      int64         `json:"paid"`
	IssuedAt  *time.Time    `json:"issuedAt,omitempty"`
}

// Outstanding is what the patient still owes.
func (inv *Invoice) Outstanding() int64 {
	return inv.Total - inv.Paid
}

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// Payment settles all or part of an invoice.
type Payment struct {
	ID        string        `json:"id,omitempty"`
	InvoiceID string        `json:"invoiceId"`
	Amount    int64         `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference,omitempty"`
	PaidAt    time.Time     `json:"paidAt,omitempty"`
}
