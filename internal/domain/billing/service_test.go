package billing

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/domain/domaintest"
	"github.com/hms/console/pkg/pagination"
)

func newTestService() (*Service, *domaintest.Dispatcher) {
	d := domaintest.NewDispatcher()
	svc := NewService(d)
	svc.now = func() time.Time { return time.Date(2026, 6, 3, 14, 0, 0, 0, time.UTC) }
	return svc, d
}

func TestComputeTotals(t *testing.T) {
	inv := &Invoice{Lines: []Line{
		{Description: "Consultation", Quantity: 1, UnitPrice: 150000},
		{Description: "CBC", Quantity: 2, UnitPrice: 80000, DiscountPercent: 10},
		{Description: "X-ray", Quantity: 1, UnitPrice: 200000, InsuranceCover: 80},
	}}
	ComputeTotals(inv)

	if inv.Subtotal != 510000 {
		t.Errorf("expected subtotal 510000, got %d", inv.Subtotal)
	}
	if inv.Discount != 16000 {
		t.Errorf("expected discount 16000, got %d", inv.Discount)
	}
	if inv.Insurance != 160000 {
		t.Errorf("expected insurance 160000, got %d", inv.Insurance)
	}
	if inv.Total != 334000 {
		t.Errorf("expected total 334000, got %d", inv.Total)
	}
}

func TestCreateInvoice(t *testing.T) {
	svc, d := newTestService()
	d.On(http.MethodPost, "/billing/invoices", func(c domaintest.Call) (any, error) {
		var inv Invoice
		_ = c.Decode(&inv)
		inv.ID = "inv1"
		return inv, nil
	})

	inv, err := svc.CreateInvoice(context.Background(), &Invoice{
		PatientID: "p1",
		Paid:      999,
		Lines:     []Line{{Description: "Consultation", Quantity: 1, UnitPrice: 150000}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != InvoiceDraft || inv.Total != 150000 || inv.Paid != 0 {
		t.Errorf("unexpected invoice: %+v", inv)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	svc, d := newTestService()
	bad := []*Invoice{
		{Lines: []Line{{Description: "x", Quantity: 1}}},
		{PatientID: "p1"},
		{PatientID: "p1", Lines: []Line{{Quantity: 1}}},
		{PatientID: "p1", Lines: []Line{{Description: "x", Quantity: 0}}},
		{PatientID: "p1", Lines: []Line{{Description: "x", Quantity: 1, UnitPrice: -5}}},
		{PatientID: "p1", Lines: []Line{{Description: "x", Quantity: 1, DiscountPercent: 120}}},
		{PatientID: "p1", Lines: []Line{{Description: "x", Quantity: 1, InsuranceCover: -1}}},
	}
	for i, inv := range bad {
		if _, err := svc.CreateInvoice(context.Background(), inv); !domain.IsInvalid(err) {
			t.Errorf("case %d: expected a validation error, got %v", i, err)
		}
	}
	if len(d.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %d", len(d.Calls()))
	}
}

func TestIssue(t *testing.T) {
	svc, d := newTestService()
	d.Reply(http.MethodGet, "/billing/invoices/inv1", Invoice{ID: "inv1", Status: InvoiceDraft, Lines: []Line{{Description: "x", Quantity: 1, UnitPrice: 1000}}})
	d.On(http.MethodPut, "/billing/invoices/inv1", func(c domaintest.Call) (any, error) {
		var inv Invoice
		_ = c.Decode(&inv)
		return inv, nil
	})

	inv, err := svc.Issue(context.Background(), "inv1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != InvoiceIssued || inv.IssuedAt == nil || inv.Total != 1000 {
		t.Errorf("unexpected invoice: %+v", inv)
	}
}

func TestPay(t *testing.T) {
	svc, d := newTestService()
	d.Reply(http.MethodGet, "/billing/invoices/inv1", Invoice{ID: "inv1", Status: InvoiceIssued, Total: 300000, Paid: 100000})
	d.Reply(http.MethodPost, "/billing/invoices/inv1/payments", Invoice{ID: "inv1", Status: InvoicePaid, Total: 300000, Paid: 300000})

	inv, err := svc.Pay(context.Background(), &Payment{InvoiceID: "inv1", Amount: 200000, Method: MethodCash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Outstanding() != 0 {
		t.Errorf("expected nothing outstanding, got %d", inv.Outstanding())
	}
}

func TestPay_Refused(t *testing.T) {
	svc, d := newTestService()
	d.Reply(http.MethodGet, "/billing/invoices/inv1", Invoice{ID: "inv1", Status: InvoiceIssued, Total: 300000, Paid: 100000})
	d.Reply(http.MethodGet, "/billing/invoices/inv2", Invoice{ID: "inv2", Status: InvoiceDraft, Total: 300000})

	tests := []struct {
		name string
		pay  Payment
	}{
		{"zero amount", Payment{InvoiceID: "inv1", Method: MethodCash}},
		{"unknown method", Payment{InvoiceID: "inv1", Amount: 1, Method: "cheque"}},
		{"card without reference", Payment{InvoiceID: "inv1", Amount: 1, Method: MethodCard}},
		{"overpayment", Payment{InvoiceID: "inv1", Amount: 200001, Method: MethodCash}},
		{"draft invoice", Payment{InvoiceID: "inv2", Amount: 1, Method: MethodCash}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pay := tt.pay
			if _, err := svc.Pay(context.Background(), &pay); !domain.IsInvalid(err) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
	if d.Count(http.MethodPost, "/billing/invoices/inv1/payments") != 0 {
		t.Error("expected no payment to be posted")
	}
}

func TestVoid(t *testing.T) {
	svc, d := newTestService()
	d.Reply(http.MethodGet, "/billing/invoices/inv1", Invoice{ID: "inv1", Status: InvoiceIssued})
	d.Reply(http.MethodGet, "/billing/invoices/inv2", Invoice{ID: "inv2", Status: InvoiceIssued, Paid: 10})
	d.On(http.MethodPut, "/billing/invoices/inv1", func(c domaintest.Call) (any, error) {
		var inv Invoice
		_ = c.Decode(&inv)
		return inv, nil
	})

	inv, err := svc.Void(context.Background(), "inv1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != InvoiceVoid {
		t.Errorf("expected void, got %s", inv.Status)
	}
	if _, err := svc.Void(context.Background(), "inv2"); !domain.IsInvalid(err) {
		t.Errorf("expected a partly paid invoice not to be voidable, got %v", err)
	}
}

func TestListInvoices(t *testing.T) {
	svc, d := newTestService()
	d.Reply(http.MethodGet, "/billing/invoices", map[string]any{"pageIndex": 1, "pageSize": 20, "totalItems": 0, "data": []Invoice{}})

	if _, err := svc.ListInvoices(context.Background(), paramsFirstPage(), "p1", InvoiceIssued); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := d.Calls()[0].Query
	if q.Get("patientId") != "p1" || q.Get("status") != "issued" {
		t.Errorf("unexpected query: %v", q)
	}
}

func paramsFirstPage() pagination.Params {
	return pagination.Params{PageIndex: 1, PageSize: 20}
}
