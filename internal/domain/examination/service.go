// Package examination orders examinations and records their results.
package examination

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

const (
	ordersPath  = "/examination/orders"
	historyPath = "/examination/history"
)

var validPriorities = map[string]bool{"routine": true, "urgent": true, "stat": true}

type Service struct {
	api apiclient.Dispatcher
	now func() time.Time
}

func NewService(api apiclient.Dispatcher) *Service {
	return &Service{api: api, now: time.Now}
}

func (s *Service) CreateOrder(ctx context.Context, o *Order) (*Order, error) {
	if o.PatientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	services := o.Services[:0]
	seen := make(map[string]bool, len(o.Services))
	for _, svc := range o.Services {
		svc = strings.TrimSpace(svc)
		if svc == "" || seen[svc] {
			continue
		}
		seen[svc] = true
		services = append(services, svc)
	}
	if len(services) == 0 {
		return nil, domain.Invalidf("at least one service is required")
	}
	o.Services = services
	if o.Priority == "" {
		o.Priority = "routine"
	}
	if !validPriorities[o.Priority] {
		return nil, domain.Invalidf("invalid priority: %s", o.Priority)
	}
	o.Status = OrderPending

	created, err := apiclient.PostAs[Order](ctx, s.api, ordersPath, o)
	if err != nil {
		return nil, fmt.Errorf("create examination order: %w", err)
	}
	return &created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, domain.Invalidf("order id is required")
	}
	o, err := apiclient.GetAs[Order](ctx, s.api, ordersPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get examination order %s: %w", id, err)
	}
	return &o, nil
}

// ListOrders returns the orders at status, or all open orders when status is
// empty.
func (s *Service) ListOrders(ctx context.Context, p pagination.Params, status OrderStatus) (*pagination.Page[Order], error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	return apiclient.GetPage[Order](ctx, s.api, ordersPath, p, q)
}

// EnterResult records the result of a pending or in-progress order.
func (s *Service) EnterResult(ctx context.Context, r *Result) (*Result, error) {
	if r.OrderID == "" {
		return nil, domain.Invalidf("orderId is required")
	}
	if strings.TrimSpace(r.Conclusion) == "" {
		return nil, domain.Invalidf("conclusion is required")
	}
	for i, f := range r.Findings {
		if f.Code == "" || f.Value == "" {
			return nil, domain.Invalidf("finding %d needs a code and a value", i)
		}
	}

	o, err := s.GetOrder(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == OrderResulted || o.Status == OrderCancelled {
		return nil, domain.Invalidf("order %s is already %s", o.ID, o.Status)
	}
	if r.ResultedAt.IsZero() {
		r.ResultedAt = s.now().UTC()
	}

	saved, err := apiclient.PostAs[Result](ctx, s.api, ordersPath+"/"+url.PathEscape(r.OrderID)+"/result", r)
	if err != nil {
		return nil, fmt.Errorf("enter examination result: %w", err)
	}
	return &saved, nil
}

// History lists a patient's past examinations.
func (s *Service) History(ctx context.Context, patientID string, p pagination.Params) (*pagination.Page[HistoryEntry], error) {
	if patientID == "" {
		return nil, domain.Invalidf("patientId is required")
	}
	return apiclient.GetPage[HistoryEntry](ctx, s.api, historyPath, p, url.Values{"patientId": {patientID}})
}

// AbnormalFindings returns the findings flagged abnormal.
func AbnormalFindings(r *Result) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Abnormal {
			out = append(out, f)
		}
	}
	return out
}
