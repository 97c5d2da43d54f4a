// Package reporting runs backend reports and assembles the dashboard.
package reporting

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hms/console/internal/domain"
	"github.com/hms/console/internal/domain/inventory"
	"github.com/hms/console/internal/platform/apiclient"
)

const (
	revenueSummaryPath     = "/reports/revenue/summary"
	visitSummaryPath       = "/reports/visits/summary"
	vaccinationSummaryPath = "/reports/vaccinations/summary"
)

type Service struct {
	api       apiclient.Dispatcher
	inventory *inventory.Service
	now       func() time.Time
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api, inventory: inventory.NewService(api), now: time.Now}
}

// Run executes the report id over r.
func (s *Service) Run(ctx context.Context, id string, r DateRange) (*Report, error) {
	def := FindDefinition(id)
	if def == nil {
		return nil, domain.Invalidf("unknown report: %s", id)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rows, err := apiclient.GetAs[[]map[string]any](ctx, s.api, def.Path, r.Values())
	if err != nil {
		return nil, fmt.Errorf("run report %s: %w", id, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Report{
		ID:          def.ID,
		Name:        def.Name,
		Range:       r,
		GeneratedAt: s.now().UTC(),
		Rows:        rows,
	}, nil
}

// Dashboard fetches every tile concurrently. The first failure cancels the
// remaining fetches and is returned.
func (s *Service) Dashboard(ctx context.Context, r DateRange) (*Dashboard, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	d := &Dashboard{Range: r}
	q := r.Values()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := apiclient.GetAs[RevenueSummary](ctx, s.api, revenueSummaryPath, q)
		if err != nil {
			return fmt.Errorf("revenue: %w", err)
		}
		d.Revenue = v
		return nil
	})
	g.Go(func() error {
		v, err := apiclient.GetAs[VisitSummary](ctx, s.api, visitSummaryPath, q)
		if err != nil {
			return fmt.Errorf("visits: %w", err)
		}
		d.Visits = v
		return nil
	})
	g.Go(func() error {
		v, err := apiclient.GetAs[VaccinationSummary](ctx, s.api, vaccinationSummaryPath, q)
		if err != nil {
			return fmt.Errorf("vaccinations: %w", err)
		}
		d.Vaccinations = v
		return nil
	})
	g.Go(func() error {
		low, err := s.inventory.LowStock(ctx)
		if err != nil {
			return fmt.Errorf("low stock: %w", err)
		}
		d.LowStock = len(low)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	d.GeneratedAt = s.now().UTC()
	return d, nil
}
