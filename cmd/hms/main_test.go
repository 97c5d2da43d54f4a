package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hms/console/internal/config"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/db"
	"github.com/hms/console/internal/platform/guard"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/session"
)

func writeEnvelope(w http.ResponseWriter, status, code int, key string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"StatusCode": code, "MessageKey": key, "Data": data})
}

var cliUsers = map[string]session.User{
	"lan": {
		ID:          "u1",
		Username:    "lan",
		FullName:    "Pham Thi Lan",
		Roles:       []permission.Role{permission.RoleReceptionist},
		Department:  permission.DeptReception,
		Permissions: permission.Grants{permission.Reception: permission.AccessWrite},
	},
	"minh": {
		ID:         "u2",
		Username:   "minh",
		FullName:   "Tran Van Minh",
		Roles:      []permission.Role{permission.RoleAdmin, permission.RoleNurse},
		Department: permission.DeptAdministration,
		Permissions: permission.Grants{
			permission.Vaccination:    permission.AccessWrite,
			permission.Examination:    permission.AccessRead,
			permission.Billing:        permission.AccessRead,
			permission.UserManagement: permission.AccessFull,
		},
	},
}

func backendPage(data any) map[string]any {
	return map[string]any{"pageIndex": 1, "pageSize": 20, "totalItems": 1, "data": data}
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	tokens := make(map[string]string, len(cliUsers))
	for name := range cliUsers {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte("backend"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		tokens["Bearer "+signed] = name
	}
	tokenOf := func(name string) string {
		for bearer, n := range tokens {
			if n == name {
				return strings.TrimPrefix(bearer, "Bearer ")
			}
		}
		return ""
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var cr session.Credentials
			_ = json.NewDecoder(r.Body).Decode(&cr)
			if _, ok := cliUsers[cr.Username]; !ok || cr.Password != "pw" {
				writeEnvelope(w, http.StatusOK, 400, "auth.invalid_credentials", nil)
				return
			}
			writeEnvelope(w, http.StatusOK, 200, "ok", apiclient.TokenPair{AccessToken: tokenOf(cr.Username), RefreshToken: "r"})
			return
		case "/auth/refresh-token":
			writeEnvelope(w, http.StatusUnauthorized, 401, "auth.refresh_expired", nil)
			return
		}
		name, ok := tokens[r.Header.Get("Authorization")]
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, 401, "auth.expired", nil)
			return
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/auth/logout":
			writeEnvelope(w, http.StatusOK, 200, "ok", nil)
		case "/auth/current-user":
			writeEnvelope(w, http.StatusOK, 200, "ok", cliUsers[name])
		case "/patients":
			writeEnvelope(w, http.StatusOK, 200, "ok", backendPage(
				[]map[string]string{{"id": "p1", "code": "BN001", "fullName": "Nguyen Van A", "dateOfBirth": "1990-02-03"}},
			))
		case "/vaccination/visits":
			writeEnvelope(w, http.StatusOK, 200, "ok", backendPage(
				[]map[string]string{{"id": "v1", "patientId": "p1", "ticketId": "T-" + q.Get("stage"), "stage": q.Get("stage")}},
			))
		case "/examination/history":
			writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]map[string]any{{
				"order":  map[string]any{"id": "o1", "patientId": q.Get("patientId"), "services": []string{"blood-count"}, "status": "resulted"},
				"result": map[string]any{"orderId": "o1", "conclusion": "normal", "findings": []any{}},
			}}))
		case "/billing/invoices":
			writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]map[string]any{
				{"id": "inv1", "number": "HD001", "patientId": "p1", "status": "issued", "total": 100000, "paid": 40000},
			}))
		case "/admin/users":
			writeEnvelope(w, http.StatusOK, 200, "ok", backendPage([]map[string]any{
				{"id": "u1", "username": "lan", "fullName": "Pham Thi Lan", "department": q.Get("department"), "active": true},
			}))
		default:
			writeEnvelope(w, http.StatusNotFound, 404, "route.not_found", nil)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type cli struct {
	t     *testing.T
	args  []string
	creds string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("API_BASE_URL", "")
	backend := newBackend(t)
	creds := filepath.Join(t.TempDir(), "credentials.json")
	return &cli{t: t, creds: creds, args: []string{"--server", backend.URL, "--credentials", creds}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, c.args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("hms %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("login", "-u", "lan", "--password", "pw")
	if !strings.Contains(out, "Signed in as lan") {
		t.Errorf("unexpected login output: %q", out)
	}

	store, err := session.OpenFileStore(c.creds)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if store.Load().Empty() || store.Server() == "" {
		t.Error("expected the token pair and server to be stored")
	}

	out = c.mustRun("whoami")
	for _, want := range []string{"lan", "Pham Thi Lan", "receptionist", "reception:write", "left"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected whoami output to contain %q, got %q", want, out)
		}
	}

	c.mustRun("logout")
	store, err = session.OpenFileStore(c.creds)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if !store.Load().Empty() {
		t.Error("expected logout to clear the stored tokens")
	}
	if _, err := c.run("whoami"); !errors.Is(err, errNotSignedIn) {
		t.Errorf("expected errNotSignedIn after logout, got %v", err)
	}
}

func TestCLI_LoginRejected(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("login", "-u", "lan", "--password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "auth.invalid_credentials") {
		t.Errorf("expected the backend message key, got %v", err)
	}
}

func TestCLI_LoginPromptsForMissingPassword(t *testing.T) {
	c := newCLI(t)
	t.Setenv("HMS_PASSWORD", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("pw\n"))
	cmd.SetArgs(append([]string{"login", "-u", "lan"}, c.args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out.String(), "Signed in as lan") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestCLI_Can(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "lan", "--password", "pw")

	out := c.mustRun("can", "/reception/tickets")
	if !strings.Contains(out, "allowed") {
		t.Errorf("expected the receptionist to open tickets, got %q", out)
	}

	out, err := c.run("can", "/billing")
	if !errors.Is(err, errDenied) {
		t.Errorf("expected errDenied, got %v", err)
	}
	if !strings.Contains(out, "denied") {
		t.Errorf("expected a denial line, got %q", out)
	}
}

func TestCLI_PatientsList(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "lan", "--password", "pw")

	out := c.mustRun("patients", "list", "--search", "nguyen")
	if !strings.Contains(out, "BN001") || !strings.Contains(out, "Page 1 of 1 (1 patients)") {
		t.Errorf("unexpected patients output: %q", out)
	}
}

func TestCLI_AnonymousScreenIsRememberedForLogin(t *testing.T) {
	c := newCLI(t)

	if _, err := c.run("patients", "list"); !errors.Is(err, errNotSignedIn) {
		t.Fatalf("expected errNotSignedIn, got %v", err)
	}
	out := c.mustRun("login", "-u", "lan", "--password", "pw")
	if !strings.Contains(out, "Continue at /reception/patients") {
		t.Errorf("expected login to point back at the patients screen, got %q", out)
	}
}

func TestCLI_DeniedScreen(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "lan", "--password", "pw")

	if _, err := c.run("inventory", "low-stock"); !errors.Is(err, errDenied) {
		t.Errorf("expected errDenied for inventory, got %v", err)
	}
}

func TestCLI_ReportRangeValidated(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("reports", "dashboard", "--from", "2026-05-10", "--to", "2026-05-01"); err == nil {
		t.Error("expected an inverted range to be rejected")
	}
}

func TestCLI_ServerFlagBeatsEnv(t *testing.T) {
	c := newCLI(t)
	t.Setenv("API_BASE_URL", "http://127.0.0.1:1")

	out := c.mustRun("login", "-u", "lan", "--password", "pw")
	if !strings.Contains(out, "Signed in as lan") {
		t.Errorf("expected --server to reach the backend, got %q", out)
	}
	if got := os.Getenv("API_BASE_URL"); got != "http://127.0.0.1:1" {
		t.Errorf("expected the environment to be left alone, got %s", got)
	}
}

func TestCLI_VaccinationQueue(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "minh", "--password", "pw")

	out := c.mustRun("vaccination", "queue", "injection")
	if !strings.Contains(out, "T-injection") || !strings.Contains(out, "Page 1 of 1 (1 waiting)") {
		t.Errorf("unexpected queue output: %q", out)
	}
	if _, err := c.run("vaccination", "queue", "completed"); err == nil || !strings.Contains(err.Error(), "no queue") {
		t.Errorf("expected a finished stage to be rejected, got %v", err)
	}
}

func TestCLI_ExaminationHistory(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "minh", "--password", "pw")

	out := c.mustRun("examination", "history", "p1")
	for _, want := range []string{"o1", "blood-count", "normal", "(1 examinations)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected history output to contain %q, got %q", want, out)
		}
	}
}

func TestCLI_BillingInvoices(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "minh", "--password", "pw")

	out := c.mustRun("billing", "invoices", "--status", "issued")
	if !strings.Contains(out, "HD001") || !strings.Contains(out, "60000") {
		t.Errorf("expected invoice HD001 with 60000 outstanding, got %q", out)
	}
}

func TestCLI_AdminUsers(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "minh", "--password", "pw")

	out := c.mustRun("admin", "users", "--department", "reception")
	if !strings.Contains(out, "Pham Thi Lan") || !strings.Contains(out, "reception") {
		t.Errorf("unexpected users output: %q", out)
	}
}

func TestCLI_ScreenCommandsDeniedForReceptionist(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "lan", "--password", "pw")

	for _, args := range [][]string{
		{"vaccination", "queue", "pre-screening"},
		{"examination", "history", "p1"},
		{"billing", "invoices"},
		{"admin", "users"},
	} {
		if _, err := c.run(args...); !errors.Is(err, errDenied) {
			t.Errorf("hms %s: expected errDenied, got %v", strings.Join(args, " "), err)
		}
	}
}

func TestMigrationsFS_Embedded(t *testing.T) {
	migrator := db.NewMigrator(nil, migrationsFS("", &config.Config{}))
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migs) != 2 || migs[0].Version != 1 || migs[1].Version != 2 {
		t.Errorf("expected the two embedded migrations, got %+v", migs)
	}
}

func TestPrintMenu(t *testing.T) {
	var out bytes.Buffer
	printMenu(&out, []guard.MenuItem{
		{Key: "nav.reception", Children: []guard.MenuItem{{Key: "nav.reception.patients", Path: "/reception/patients"}}},
	}, 0)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "  nav.reception.patients") || !strings.HasSuffix(lines[1], "/reception/patients") {
		t.Errorf("unexpected child line: %q", lines[1])
	}
}

func TestFormatGrants(t *testing.T) {
	got := formatGrants(permission.Grants{permission.Report: permission.AccessRead, permission.Reception: permission.AccessFull})
	if got != "reception:full report:read" {
		t.Errorf("expected grants in menu order, got %q", got)
	}
	if formatGrants(nil) != "-" {
		t.Error("expected a dash for no grants")
	}
}
