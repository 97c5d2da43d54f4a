// Package reception registers patients and issues queue tickets.
package reception

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/pkg/pagination"
)

const (
	patientsPath = "/patients"
	ticketsPath  = "/reception/tickets"
)

var validGenders = map[string]bool{"male": true, "female": true, "other": true}

var validKinds = map[TicketKind]bool{KindExamination: true, KindVaccination: true}

// ticketTransitions lists the statuses each status may move to.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketWaiting: {TicketCalled, TicketCancelled},
	TicketCalled:  {TicketDone, TicketWaiting, TicketCancelled},
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

type Service struct {
	api apiclient.Dispatcher
	now func() time.Time
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api, now: time.Now}
}

// -- Patients --

func (s *Service) SearchPatients(ctx context.Context, p pagination.Params, search string) (*pagination.Page[Patient], error) {
	q := url.Values{}
	if search = strings.TrimSpace(search); search != "" {
		q.Set("search", search)
	}
	return apiclient.GetPage[Patient](ctx, s.api, patientsPath, p, q)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	if id == "" {
		return nil, domain.Invalidf("patient id is required")
	}
	p, err := apiclient.GetAs[Patient](ctx, s.api, patientsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) (*Patient, error) {
	if err := s.validatePatient(p); err != nil {
		return nil, err
	}
	created, err := apiclient.PostAs[Patient](ctx, s.api, patientsPath, p)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return &created, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	if p.ID == "" {
		return nil, domain.Invalidf("patient id is required")
	}
	if err := s.validatePatient(p); err != nil {
		return nil, err
	}
	updated, err := apiclient.PutAs[Patient](ctx, s.api, patientsPath+"/"+url.PathEscape(p.ID), p)
	if err != nil {
		return nil, fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	return &updated, nil
}

func (s *Service) validatePatient(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return domain.Invalidf("fullName is required")
	}
	dob, err := domain.ParseDate("dateOfBirth", p.DateOfBirth)
	if err != nil {
		return err
	}
	if dob.After(s.now()) {
		return domain.Invalidf("dateOfBirth is in the future")
	}
	p.Gender = strings.ToLower(p.Gender)
	if !validGenders[p.Gender] {
		return domain.Invalidf("invalid gender: %s", p.Gender)
	}
	if p.Phone != "" && !phonePattern.MatchString(p.Phone) {
		return domain.Invalidf("invalid phone: %s", p.Phone)
	}
	if age(dob, s.now()) < 16 && p.GuardianName == "" && p.IdentityNumber == "" {
		return domain.Invalidf("guardianName is required for patients under 16")
	}
	return nil
}

func age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}

// -- Tickets --

func (s *Service) IssueTicket(ctx context.Context, t *Ticket) (*Ticket, error) {
	if t.PatientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	if !validKinds[t.Kind] {
		return nil, domain.Invalidf("invalid ticket kind: %s", t.Kind)
	}
	t.Status = TicketWaiting
	created, err := apiclient.PostAs[Ticket](ctx, s.api, ticketsPath, t)
	if err != nil {
		return nil, fmt.Errorf("issue ticket: %w", err)
	}
	return &created, nil
}

// ListTickets returns one day's queue, optionally narrowed to kind.
func (s *Service) ListTickets(ctx context.Context, p pagination.Params, day time.Time, kind TicketKind) (*pagination.Page[Ticket], error) {
	q := url.Values{}
	q.Set("date", day.Format(domain.DateLayout))
	if kind != "" {
		if !validKinds[kind] {
			return nil, domain.Invalidf("invalid ticket kind: %s", kind)
		}
		q.Set("kind", string(kind))
	}
	return apiclient.GetPage[Ticket](ctx, s.api, ticketsPath, p, q)
}

// MoveTicket changes a ticket's status when the queue allows the transition.
func (s *Service) MoveTicket(ctx context.Context, id string, to TicketStatus) (*Ticket, error) {
	if id == "" {
		return nil, domain.Invalidf("ticket id is required")
	}
	path := ticketsPath + "/" + url.PathEscape(id)
	current, err := apiclient.GetAs[Ticket](ctx, s.api, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	if !CanMoveTicket(current.Status, to) {
		return nil, domain.Invalidf("ticket %s cannot move from %s to %s", id, current.Status, to)
	}
	moved, err := apiclient.PutAs[Ticket](ctx, s.api, path+"/status", map[string]TicketStatus{"status": to})
	if err != nil {
		return nil, fmt.Errorf("move ticket %s: %w", id, err)
	}
	return &moved, nil
}

// CanMoveTicket reports whether a ticket may go from one status to another.
func CanMoveTicket(from, to TicketStatus) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
