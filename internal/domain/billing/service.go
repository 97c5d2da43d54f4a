// Package billing builds hospital invoices and records payments.
package billing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/pkg/pagination"
)

const invoicesPath = "/billing/invoices"

var validMethods = map[PaymentMethod]bool{MethodCash: true, MethodCard: true, MethodTransfer: true}

type Service struct {
	api apiclient.Dispatcher
	now func() time.Time
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api, now: time.Now}
}

// ComputeTotals fills the invoice's money fields from its lines. Paid is left
// untouched.
func ComputeTotals(inv *Invoice) {
	var subtotal, discount, insurance int64
	for _, l := range inv.Lines {
		gross := l.UnitPrice * int64(l.Quantity)
		subtotal += gross
		discount += gross - l.Amount()
		insurance += l.Covered()
	}
	inv.Subtotal = subtotal
	inv.Discount = discount
	inv.Insurance = insurance
	inv.Total = subtotal - discount - insurance
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return domain.Invalidf("an invoice needs at least one line")
	}
	for i, l := range lines {
		if strings.TrimSpace(l.Description) == "" {
			return domain.Invalidf("line %d: description is required", i)
		}
		if l.Quantity <= 0 {
			return domain.Invalidf("line %d: quantity must be positive, got %d", i, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return domain.Invalidf("line %d: unitPrice cannot be negative", i)
		}
		if l.DiscountPercent < 0 || l.DiscountPercent > 100 {
			return domain.Invalidf("line %d: discountPercent must be 0-100, got %d", i, l.DiscountPercent)
		}
		if l.InsuranceCover < 0 || l.InsuranceCover > 100 {
			return domain.Invalidf("line %d: insuranceCoverPercent must be 0-100, got %d", i, l.InsuranceCover)
		}
	}
	return nil
}

// CreateInvoice stores a draft invoice with computed totals.
func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	if inv.PatientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	if err := validateLines(inv.Lines); err != nil {
		return nil, err
	}
	inv.Status = InvoiceDraft
	inv.Paid = 0
	ComputeTotals(inv)

	created, err := apiclient.PostAs[Invoice](ctx, s.api, invoicesPath, inv)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	if id == "" {
		return nil, domain.Invalidf("invoice id is required")
	}
	inv, err := apiclient.GetAs[Invoice](ctx, s.api, invoicePath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, p pagination.Params, patientID string, status InvoiceStatus) (*pagination.Page[Invoice], error) {
	q := url.Values{}
	if patientID != "" {
		q.Set("patientId", patientID)
	}
	if status != "" {
		q.Set("status", string(status))
	}
	return apiclient.GetPage[Invoice](ctx, s.api, invoicesPath, p, q)
}

// Issue finalises a draft so it can be paid.
func (s *Service) Issue(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, domain.Invalidf("invoice %s is %s, only a draft can be issued", id, inv.Status)
	}
	now := s.now().UTC()
	inv.Status = InvoiceIssued
	inv.IssuedAt = &now
	ComputeTotals(inv)
	return s.put(ctx, inv)
}

// Pay records a payment against an issued invoice. The invoice becomes paid
// once nothing is outstanding.
func (s *Service) Pay(ctx context.Context, pay *Payment) (*Invoice, error) {
	if pay.Amount <= 0 {
		return nil, domain.Invalidf("amount must be positive")
	}
	if !validMethods[pay.Method] {
		return nil, domain.Invalidf("invalid payment method: %s", pay.Method)
	}
	if pay.Method != MethodCash && pay.Reference == "" {
		return nil, domain.Invalidf("reference is required for %s payments", pay.Method)
	}
	inv, err := s.GetInvoice(ctx, pay.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceIssued {
		return nil, domain.Invalidf("invoice %s is %s, only an issued invoice can be paid", inv.ID, inv.Status)
	}
	if pay.Amount > inv.Outstanding() {
		return nil, domain.Invalidf("payment %d exceeds outstanding %d", pay.Amount, inv.Outstanding())
	}
	if pay.PaidAt.IsZero() {
		pay.PaidAt = s.now().UTC()
	}

	updated, err := apiclient.PostAs[Invoice](ctx, s.api, invoicePath(inv.ID)+"/payments", pay)
	if err != nil {
		return nil, fmt.Errorf("pay invoice %s: %w", inv.ID, err)
	}
	return &updated, nil
}

// Void cancels an invoice that has not been paid.
func (s *Service) Void(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceVoid || inv.Paid > 0 {
		return nil, domain.Invalidf("invoice %s cannot be voided", id)
	}
	inv.Status = InvoiceVoid
	return s.put(ctx, inv)
}

func (s *Service) put(ctx context.Context, inv *Invoice) (*Invoice, error) {
	updated, err := apiclient.PutAs[Invoice](ctx, s.api, invoicePath(inv.ID), inv)
	if err != nil {
		return nil, fmt.Errorf("update invoice %s: %w", inv.ID, err)
	}
	return &updated, nil
}

func invoicePath(id string) string {
	return invoicesPath + "/" + url.PathEscape(id)
}
