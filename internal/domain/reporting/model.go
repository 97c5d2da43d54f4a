package reporting

import (
	"net/url"
	"time"

	"github.com/hms/console/internal/domain"
)

// MaxRangeDays bounds a report's date range.
const MaxRangeDays = 366

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParseRange parses from and to as calendar dates. An empty to means from; an
// empty from means the first day of to's month.
func ParseRange(from, to string, now time.Time) (DateRange, error) {
	var r DateRange
	var err error
	if to == "" {
		r.To = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else if r.To, err = domain.ParseDate("to", to); err != nil {
		return DateRange{}, err
	}
	if from == "" {
		r.From = time.Date(r.To.Year(), r.To.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else if r.From, err = domain.ParseDate("from", from); err != nil {
		return DateRange{}, err
	}
	return r, r.Validate()
}

// Validate checks ordering and span.
func (r DateRange) Validate() error {
	if r.To.Before(r.From) {
		return domain.Invalidf("from %s is after to %s", r.From.Format(domain.DateLayout), r.To.Format(domain.DateLayout))
	}
	if r.Days() > MaxRangeDays {
		return domain.Invalidf("range of %d days exceeds %d", r.Days(), MaxRangeDays)
	}
	return nil
}

// Days is the number of calendar days covered.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// Values encodes the range for a backend query.
func (r DateRange) Values() url.Values {
	q := url.Values{}
	q.Set("from", r.From.Format(domain.DateLayout))
	q.Set("to", r.To.Format(domain.DateLayout))
	return q
}

// Definition describes a report the backend can run.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"-"`
}

// Definitions is the catalogue shown on the reports screen.
var Definitions = []Definition{
	{
		ID:          "revenue",
		Name:        "Revenue",
		Description: "Invoiced, insured and collected amounts per day",
		Path:        "/reports/revenue",
	},
	{
		ID:          "visits",
		Name:        "Visits",
		Description: "Reception tickets per day and queue",
		Path:        "/reports/visits",
	},
	{
		ID:          "vaccinations",
		Name:        "Vaccinations",
		Description: "Completed, deferred and cancelled vaccination visits by vaccine",
		Path:        "/reports/vaccinations",
	},
	{
		ID:          "inventory-movement",
		Name:        "Inventory movement",
		Description: "Imported and exported quantities per item",
		Path:        "/reports/inventory-movement",
	},
}

// FindDefinition looks up a report by ID.
func FindDefinition(id string) *Definition {
	for i := range Definitions {
		if Definitions[i].ID == id {
			return &Definitions[i]
		}
	}
	return nil
}

// Report is the result of running a Definition.
type Report struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Range       DateRange        `json:"range"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Rows        []map[string]any `json:"rows"`
}

// RevenueSummary is the revenue tile.
type RevenueSummary struct {
	Invoiced    int64 `json:"invoiced"`
	Collected   int64 `json:"collected"`
	Outstanding int64 `json:"outstanding"`
}

// VisitSummary is the visits tile.
type VisitSummary struct {
	Examinations int `json:"examinations"`
	Vaccinations int `json:"vaccinations"`
	Waiting      int `json:"waiting"`
}

// VaccinationSummary is the vaccination tile.
type VaccinationSummary struct {
	Completed int `json:"completed"`
	Deferred  int `json:"deferred"`
	Reactions int `json:"reactions"`
}

// Dashboard is the manager's landing page.
type Dashboard struct {
	Range        DateRange          `json:"range"`
	Revenue      RevenueSummary     `json:"revenue"`
	Visits       VisitSummary       `json:"visits"`
	Vaccinations VaccinationSummary `json:"vaccinations"`
	LowStock     int                `json:"lowStock"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}
