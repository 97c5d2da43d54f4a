// Package vaccination drives a visit through pre-screening, injection and
// post-injection follow-up.
package vaccination

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

const visitsPath = "/vaccination/visits"

// MinObservationMinutes is the shortest post-injection observation accepted.
const MinObservationMinutes = 30

var validSites = map[string]bool{
	"left-deltoid": true, "right-deltoid": true,
	"left-thigh": true, "right-thigh": true, "oral": true,
}

type Service struct {
	api apiclient.Dispatcher
	now func() time.Time
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api, now: time.Now}
}

// Start opens a visit at pre-screening.
func (s *Service) Start(ctx context.Context, patientID, ticketID string) (*Visit, error) {
	if patientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	v := Visit{PatientID: patientID, TicketID: ticketID, Stage: StagePreScreening}
	created, err := apiclient.PostAs[Visit](ctx, s.api, visitsPath, v)
	if err != nil {
		return nil, fmt.Errorf("start vaccination visit: %w", err)
	}
	return &created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Visit, error) {
	if id == "" {
		return nil, domain.Invalidf("visit id is required")
	}
	v, err := apiclient.GetAs[Visit](ctx, s.api, visitPath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get vaccination visit %s: %w", id, err)
	}
	return &v, nil
}

// RecordScreening stores the screening and moves the visit to injection, or
// to deferred when the patient is not eligible.
func (s *Service) RecordScreening(ctx context.Context, id string, sc Screening) (*Visit, error) {
	if sc.TemperatureC < 34 || sc.TemperatureC > 43 {
		return nil, domain.Invalidf("temperatureC out of range: %.1f", sc.TemperatureC)
	}
	if !sc.Eligible && strings.TrimSpace(sc.DeferReason) == "" {
		return nil, domain.Invalidf("deferReason is required when the patient is not eligible")
	}
	if sc.TemperatureC >= 37.5 && sc.Eligible {
		return nil, domain.Invalidf("a patient with fever cannot be marked eligible")
	}
	next := StageInjection
	if !sc.Eligible {
		next = StageDeferred
	}
	return s.advance(ctx, id, next, func(v *Visit) { v.Screening = &sc })
}

// RecordInjection stores the dose and moves the visit to follow-up.
func (s *Service) RecordInjection(ctx context.Context, id string, in Injection) (*Visit, error) {
	if in.VaccineCode == "" {
		return nil, domain.Invalidf("vaccineCode is required")
	}
	if in.LotNumber == "" {
		return nil, domain.Invalidf("lotNumber is required")
	}
	if in.DoseNumber < 1 {
		return nil, domain.Invalidf("doseNumber must be at least 1")
	}
	if !validSites[in.Site] {
		return nil, domain.Invalidf("invalid injection site: %s", in.Site)
	}
	if in.GivenAt.IsZero() {
		in.GivenAt = s.now().UTC()
	}
	return s.advance(ctx, id, StageFollowUp, func(v *Visit) { v.Injection = &in })
}

// RecordFollowUp closes the visit after the observation period.
func (s *Service) RecordFollowUp(ctx context.Context, id string, f FollowUp) (*Visit, error) {
	if f.ObservedMinutes < MinObservationMinutes && !f.Severe {
		return nil, domain.Invalidf("observation must last at least %d minutes, got %d", MinObservationMinutes, f.ObservedMinutes)
	}
	if f.Severe && strings.TrimSpace(f.Reaction) == "" {
		return nil, domain.Invalidf("reaction is required for a severe reaction")
	}
	return s.advance(ctx, id, StageCompleted, func(v *Visit) { v.FollowUp = &f })
}

// Cancel ends an unfinished visit.
func (s *Service) Cancel(ctx context.Context, id string) (*Visit, error) {
	return s.advance(ctx, id, StageCancelled, func(*Visit) {})
}

// History lists a patient's visits, newest first.
func (s *Service) History(ctx context.Context, patientID string, p pagination.Params) (*pagination.Page[Visit], error) {
	if patientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	return apiclient.GetPage[Visit](ctx, s.api, visitsPath, p, url.Values{"patientId": {patientID}})
}

// Queue lists today's visits waiting at stage.
func (s *Service) Queue(ctx context.Context, stage Stage, p pagination.Params) (*pagination.Page[Visit], error) {
	if Terminal(stage) {
		return nil, domain.Invalidf("no queue for stage %s", stage)
	}
	q := url.Values{}
	q.Set("stage", string(stage))
	q.Set("date", s.now().Format(domain.DateLayout))
	return apiclient.GetPage[Visit](ctx, s.api, visitsPath, p, q)
}

func (s *Service) advance(ctx context.Context, id string, to Stage, apply func(*Visit)) (*Visit, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(v.Stage, to) {
		return nil, domain.Invalidf("visit %s cannot move from %s to %s", id, v.Stage, to)
	}
	apply(v)
	v.Stage = to
	updated, err := apiclient.PutAs[Visit](ctx, s.api, visitPath(id), v)
	if err != nil {
		return nil, fmt.Errorf("move vaccination visit %s to %s: %w", id, to, err)
	}
	return &updated, nil
}

func visitPath(id string) string {
	return visitsPath + "/" + url.PathEscape(id)
}
