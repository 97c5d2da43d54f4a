package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hms/console/internal/domain/admin"
	"github.com/hms/console/internal/domain/billing"
	"github.com/hms/console/internal/domain/examination"
	"github.com/hms/console/internal/domain/inventory"
	"github.com/hms/console/internal/domain/reporting"
	"github.com/hms/console/internal/domain/vaccination"
	"github.com/hms/console/internal/platform/apiclient"
	"github.com/hms/console/internal/platform/permission"
	"github.com/hms/console/internal/platform/websocket"
	"github.com/hms/console/pkg/pagination"
)

// vaccinationStages are the workflow stages that have a queue screen.
var vaccinationStages = []vaccination.Stage{
	vaccination.StagePreScreening,
	vaccination.StageInjection,
	vaccination.StageFollowUp,
}

// registerScreens mounts the screens that come with data. Everything else
// under the group falls through to the bootstrap handler.
func (s *Server) registerScreens(screens *echo.Group) {
	screens.GET("/reports/dashboard", s.dashboard)
	screens.GET("/inventory/low-stock", s.lowStock)

	for _, stage := range vaccinationStages {
		path := vaccination.ScreenPath(stage)
		screens.GET(path, s.vaccinationQueue(stage))
		screens.POST(path+"/:visit", s.vaccinationRecord(stage))
	}
	screens.GET("/vaccination/history/:patient", s.vaccinationHistory)

	screens.GET("/examination", s.examinationOrders)
	screens.GET("/examination/history/:patient", s.examinationHistory)

	screens.GET("/billing", s.invoices)
	screens.POST("/billing/payments/:invoice", s.pay)

	screens.GET("/admin/users", s.users)
	screens.GET("/admin/departments", s.departments)

	screens.GET("/*", s.screen)
}

type screenLoader func(ctx context.Context, api apiclient.Dispatcher) (any, error)

// serveScreen loads a screen's data as the session's user and records the
// screen as the browser's location.
func (s *Server) serveScreen(c echo.Context, load screenLoader) error {
	b := browserFrom(c)
	data, err := load(c.Request().Context(), b.Manager().Client())
	if err != nil {
		return s.fail(c, err)
	}
	b.Binding().SetLocation(screenPath(c))
	return respond(c, http.StatusOK, data)
}

// fail toasts a business error to the browser and renders it.
func (s *Server) fail(c echo.Context, err error) error {
	if key := apiclient.MessageKeyOf(err); key != "" {
		s.hub.Toast(browserFrom(c).ID(), websocket.LevelError, key)
	}
	return backendError(err)
}

func (s *Server) dashboard(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		r, err := reporting.ParseRange(c.QueryParam("from"), c.QueryParam("to"), time.Now())
		if err != nil {
			return nil, err
		}
		return reporting.NewService(api).Dashboard(ctx, r)
	})
}

func (s *Server) lowStock(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		return inventory.NewService(api).LowStock(ctx)
	})
}

func (s *Server) vaccinationQueue(stage vaccination.Stage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
			return vaccination.NewService(api).Queue(ctx, stage, pagination.FromContext(c))
		})
	}
}

// vaccinationRecord stores the form of stage for one visit and moves the
// browser to the screen of the stage the visit reached. A visit that ended
// sends the browser back to the queue it came from.
func (s *Server) vaccinationRecord(stage vaccination.Stage) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := browserFrom(c)
		svc := vaccination.NewService(b.Manager().Client())
		ctx := c.Request().Context()
		id := c.Param("visit")

		var (
			visit *vaccination.Visit
			err   error
		)
		switch stage {
		case vaccination.StagePreScreening:
			var sc vaccination.Screening
			if err := c.Bind(&sc); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
			}
			visit, err = svc.RecordScreening(ctx, id, sc)
		case vaccination.StageInjection:
			var in vaccination.Injection
			if err := c.Bind(&in); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
			}
			visit, err = svc.RecordInjection(ctx, id, in)
		default:
			var f vaccination.FollowUp
			if err := c.Bind(&f); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
			}
			visit, err = svc.RecordFollowUp(ctx, id, f)
		}
		if err != nil {
			return s.fail(c, err)
		}

		next := vaccination.ScreenPath(visit.Stage)
		if next == "" {
			next = vaccination.ScreenPath(stage)
		}
		b.Manager().Navigator().Navigate(next)
		return respond(c, http.StatusOK, visit)
	}
}

func (s *Server) vaccinationHistory(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		return vaccination.NewService(api).History(ctx, c.Param("patient"), pagination.FromContext(c))
	})
}

func (s *Server) examinationOrders(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		status := examination.OrderStatus(c.QueryParam("status"))
		return examination.NewService(api).ListOrders(ctx, pagination.FromContext(c), status)
	})
}

func (s *Server) examinationHistory(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		return examination.NewService(api).History(ctx, c.Param("patient"), pagination.FromContext(c))
	})
}

func (s *Server) invoices(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		status := billing.InvoiceStatus(c.QueryParam("status"))
		return billing.NewService(api).ListInvoices(ctx, pagination.FromContext(c), c.QueryParam("patientId"), status)
	})
}

// pay records a payment; the browser stays on the screen it paid from.
func (s *Server) pay(c echo.Context) error {
	var p billing.Payment
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, KeyInvalidJSON)
	}
	p.InvoiceID = c.Param("invoice")

	inv, err := billing.NewService(browserFrom(c).Manager().Client()).Pay(c.Request().Context(), &p)
	if err != nil {
		return s.fail(c, err)
	}
	return respond(c, http.StatusOK, inv)
}

func (s *Server) users(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		dept := permission.Department(c.QueryParam("department"))
		return admin.NewService(api).ListUsers(ctx, pagination.FromContext(c), c.QueryParam("search"), dept)
	})
}

func (s *Server) departments(c echo.Context) error {
	return s.serveScreen(c, func(ctx context.Context, api apiclient.Dispatcher) (any, error) {
		return admin.NewService(api).ListDepartments(ctx)
	})
}
