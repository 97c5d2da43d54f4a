package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/hms/console/internal/domain/admin"
	"github.com/hms/console/internal/domain/billing"
	"github.com/hms/console/internal/domain/examination"
	"github.com/hms/console/internal/domain/vaccination"
	"github.com/hms/console/pkg/pagination"
)

// clinicBackend adds the screen data endpoints to fakeBackend's auth flow.
type clinicBackend struct {
	*fakeBackend

	dataMu   sync.Mutex
	visits   map[string]vaccination.Visit
	invoices map[string]billing.Invoice
	queries  map[string]string
}

func newClinicBackend() *clinicBackend {
	return &clinicBackend{
		fakeBackend: newFakeBackend(),
		visits: map[string]vaccination.Visit{
			"v1": {ID: "v1", PatientID: "p1", Stage: vaccination.StagePreScreening},
			"v2": {ID: "v2", PatientID: "p2", Stage: vaccination.StageFollowUp},
		},
		invoices: map[string]billing.Invoice{
			"inv1": {ID: "inv1", Number: "HD001", PatientID: "p1", Status: billing.InvoiceIssued, Total: 100000},
		},
		queries: make(map[string]string),
	}
}

func (b *clinicBackend) lastQuery(path string) string {
	b.dataMu.Lock()
	defer b.dataMu.Unlock()
	return b.queries[path]
}

func (b *clinicBackend) visit(id string) vaccination.Visit {
	b.dataMu.Lock()
	defer b.dataMu.Unlock()
	return b.visits[id]
}

func backendPage(data any, total int) map[string]any {
	return map[string]any{"pageIndex": 1, "pageSize": 20, "totalItems": total, "data": data}
}

func (b *clinicBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/auth/") {
		b.fakeBackend.ServeHTTP(w, r)
		return
	}
	if _, ok := b.userFor(r); !ok {
		writeEnvelope(w, http.StatusUnauthorized, 401, "auth.expired", nil)
		return
	}

	b.dataMu.Lock()
	defer b.dataMu.Unlock()
	b.queries[r.URL.Path] = r.URL.RawQuery
	q := r.URL.Query()

	switch path := r.URL.Path; {
	case path == "/vaccination/visits":
		out := []vaccination.Visit{}
		for _, id := range []string{"v1", "v2"} {
			v := b.visits[id]
			if string(v.Stage) == q.Get("stage") || v.PatientID == q.Get("patientId") {
				out = append(out, v)
			}
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", backendPage(out, len(out)))
	case strings.HasPrefix(path, "/vaccination/visits/"):
		id := strings.TrimPrefix(path, "/vaccination/visits/")
		v, ok := b.visits[id]
		if !ok {
			writeEnvelope(w, http.StatusNotFound, 404, "vaccination.visit_not_found", nil)
			return
		}
		if r.Method == http.MethodPut {
			_ = json.NewDecoder(r.Body).Decode(&v)
			b.visits[id] = v
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", v)
	case path == "/examination/orders":
		writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]examination.Order{
			{ID: "o1", PatientID: "p1", Services: []string{"chest-xray"}, Status: examination.OrderPending},
		}, 1))
	case path == "/examination/history":
		writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]examination.HistoryEntry{
			{Order: examination.Order{ID: "o0", PatientID: q.Get("patientId"), Services: []string{"blood-count"}, Status: examination.OrderResulted}},
		}, 1))
	case path == "/billing/invoices":
		out := []billing.Invoice{}
		for _, inv := range b.invoices {
			if q.Get("status") == "" || string(inv.Status) == q.Get("status") {
				out = append(out, inv)
			}
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", backendPage(out, len(out)))
	case path == "/billing/invoices/inv1":
		writeEnvelope(w, http.StatusOK, 200, "ok", b.invoices["inv1"])
	case path == "/billing/invoices/inv1/payments" && r.Method == http.MethodPost:
		var p billing.Payment
		_ = json.NewDecoder(r.Body).Decode(&p)
		inv := b.invoices["inv1"]
		inv.Paid += p.Amount
		if inv.Outstanding() == 0 {
			inv.Status = billing.InvoicePaid
		}
		b.invoices["inv1"] = inv
		writeEnvelope(w, http.StatusOK, 200, "ok", inv)
	case path == "/admin/users":
		writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]admin.Account{
			{ID: "u1", Username: "lan", FullName: "Pham Thi Lan", Active: true},
		}, 1))
	case path == "/admin/departments":
		writeEnvelope(w, http.StatusOK, 200, "ok", []admin.Department{
			{ID: "d1", Code: "reception", Name: "Reception"},
			{ID: "d2", Code: "pharmacy", Name: "Pharmacy"},
		})
	default:
		writeEnvelope(w, http.StatusNotFound, 404, "route.not_found", nil)
	}
}

func (b *browser) location(t *testing.T) string {
	t.Helper()
	live, ok := b.srv.Registry().Lookup(b.sessionID(t))
	if !ok {
		t.Fatal("expected a live session")
	}
	return live.Binding().Location()
}

func TestScreens_VaccinationQueueAndScreening(t *testing.T) {
	backend := newClinicBackend()
	srv, _ := newTestServer(t, backend, nil)
	br := newBrowser(t, srv)
	br.login("doctor")

	rec := br.do(http.MethodGet, "/screens/vaccination/pre-screening?page=1&size=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var queue pagination.Page[vaccination.Visit]
	decodeData(t, rec, &queue)
	if len(queue.Data) != 1 || queue.Data[0].ID != "v1" {
		t.Errorf("expected v1 waiting for pre-screening, got %+v", queue.Data)
	}
	q := backend.lastQuery("/vaccination/visits")
	if !strings.Contains(q, "stage=pre-screening") || !strings.Contains(q, "pageSize=10") {
		t.Errorf("expected the stage and page size in the backend query, got %q", q)
	}
	if loc := br.location(t); loc != "/vaccination/pre-screening" {
		t.Errorf("expected the queue to become the location, got %q", loc)
	}

	rec = br.do(http.MethodPost, "/screens/vaccination/pre-screening/v1", `{"temperatureC":36.8,"eligible":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v vaccination.Visit
	decodeData(t, rec, &v)
	if v.Stage != vaccination.StageInjection || v.Screening == nil {
		t.Errorf("expected the visit to move to injection with its screening, got %+v", v)
	}
	if loc := br.location(t); loc != "/vaccination/injection" {
		t.Errorf("expected the browser to follow the visit to injection, got %q", loc)
	}

	rec = br.do(http.MethodPost, "/screens/vaccination/injection/v1",
		`{"vaccineCode":"MMR","lotNumber":"L1","doseNumber":1,"site":"left-deltoid"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected a doctor to be kept off the injection screen, got %d", rec.Code)
	}
	if got := backend.visit("v1").Stage; got != vaccination.StageInjection {
		t.Errorf("expected the visit to stay at injection, got %s", got)
	}
}

func TestScreens_InvalidScreeningRejected(t *testing.T) {
	backend := newClinicBackend()
	srv, _ := newTestServer(t, backend, nil)
	br := newBrowser(t, srv)
	br.login("doctor")

	rec := br.do(http.MethodPost, "/screens/vaccination/pre-screening/v1", `{"temperatureC":38.5,"eligible":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if env := decode(t, rec); env.MessageKey != KeyInvalidRequest {
		t.Errorf("expected %q, got %q", KeyInvalidRequest, env.MessageKey)
	}
	if got := backend.visit("v1").Stage; got != vaccination.StagePreScreening {
		t.Errorf("expected the visit to stay at pre-screening, got %s", got)
	}
}

func TestScreens_FinishedVisitReturnsToQueue(t *testing.T) {
	srv, _ := newTestServer(t, newClinicBackend(), nil)
	br := newBrowser(t, srv)
	br.login("nurse")

	rec := br.do(http.MethodPost, "/screens/vaccination/follow-up/v2", `{"observedMinutes":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v vaccination.Visit
	decodeData(t, rec, &v)
	if v.Stage != vaccination.StageCompleted {
		t.Errorf("expected the visit to complete, got %s", v.Stage)
	}
	if loc := br.location(t); loc != "/vaccination/follow-up" {
		t.Errorf("expected the browser back on the follow-up queue, got %q", loc)
	}
}

func TestScreens_ExaminationHistoryCarveOut(t *testing.T) {
	backend := newClinicBackend()
	srv, _ := newTestServer(t, backend, nil)

	reception := newBrowser(t, srv)
	reception.login("vaccrecep")
	rec := reception.do(http.MethodGet, "/screens/examination/history/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected vaccination reception to read the history, got %d: %s", rec.Code, rec.Body.String())
	}
	var history pagination.Page[examination.HistoryEntry]
	decodeData(t, rec, &history)
	if len(history.Data) != 1 || history.Data[0].Order.PatientID != "p1" {
		t.Errorf("expected p1's history, got %+v", history.Data)
	}
	if rec := reception.do(http.MethodGet, "/screens/examination", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected vaccination reception to be denied the order list, got %d", rec.Code)
	}

	doctor := newBrowser(t, srv)
	doctor.login("doctor")
	rec = doctor.do(http.MethodGet, "/screens/examination?status=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the doctor to open the order list, got %d: %s", rec.Code, rec.Body.String())
	}
	var orders pagination.Page[examination.Order]
	decodeData(t, rec, &orders)
	if len(orders.Data) != 1 || orders.Data[0].ID != "o1" {
		t.Errorf("expected order o1, got %+v", orders.Data)
	}
	if q := backend.lastQuery("/examination/orders"); !strings.Contains(q, "status=pending") {
		t.Errorf("expected the status filter to be forwarded, got %q", q)
	}
}

func TestScreens_BillingInvoicesAndPayment(t *testing.T) {
	backend := newClinicBackend()
	srv, _ := newTestServer(t, backend, nil)
	br := newBrowser(t, srv)
	br.login("cashier")

	rec := br.do(http.MethodGet, "/screens/billing?status=issued", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var invoices pagination.Page[billing.Invoice]
	decodeData(t, rec, &invoices)
	if len(invoices.Data) != 1 || invoices.Data[0].Number != "HD001" {
		t.Errorf("expected invoice HD001, got %+v", invoices.Data)
	}

	rec = br.do(http.MethodPost, "/screens/billing/payments/inv1", `{"amount":100000,"method":"cash"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var inv billing.Invoice
	decodeData(t, rec, &inv)
	if inv.Status != billing.InvoicePaid || inv.Outstanding() != 0 {
		t.Errorf("expected the invoice to be settled, got %+v", inv)
	}
	if loc := br.location(t); loc != "/billing" {
		t.Errorf("expected the browser to stay on the invoice list, got %q", loc)
	}

	rec = br.do(http.MethodPost, "/screens/billing/payments/inv1", `{"amount":10,"method":"cash"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected paying a settled invoice to be rejected, got %d", rec.Code)
	}
}

func TestScreens_BillingDeniedWithoutGrant(t *testing.T) {
	srv, _ := newTestServer(t, newClinicBackend(), nil)
	br := newBrowser(t, srv)
	br.login("nurse")

	if rec := br.do(http.MethodGet, "/screens/billing", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestScreens_Admin(t *testing.T) {
	backend := newClinicBackend()
	srv, _ := newTestServer(t, backend, nil)
	br := newBrowser(t, srv)
	br.login("admin")

	rec := br.do(http.MethodGet, "/screens/admin/users?search=lan&department=reception", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var users pagination.Page[admin.Account]
	decodeData(t, rec, &users)
	if len(users.Data) != 1 || users.Data[0].Username != "lan" {
		t.Errorf("expected lan, got %+v", users.Data)
	}
	q := backend.lastQuery("/admin/users")
	if !strings.Contains(q, "search=lan") || !strings.Contains(q, "department=reception") {
		t.Errorf("expected the filters to be forwarded, got %q", q)
	}

	rec = br.do(http.MethodGet, "/screens/admin/departments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var depts []admin.Department
	decodeData(t, rec, &depts)
	if len(depts) != 2 {
		t.Errorf("expected two departments, got %+v", depts)
	}
}

func TestScreens_UnlistedScreenDenied(t *testing.T) {
	srv, _ := newTestServer(t, newClinicBackend(), nil)
	br := newBrowser(t, srv)
	br.login("admin")

	if rec := br.do(http.MethodGet, "/screens/secret", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected an unlisted screen to be denied, got %d", rec.Code)
	}
}
