package forecast

import (
	"sort"
	"time"

	"github.com/irfndi/costcast/internal/models"
	"github.com/irfndi/costcast/internal/utils"
)

// GapPolicy decides what happens when calendar days are missing from a history
type GapPolicy string

const (
	// GapInterpolate fills missing days linearly between the surrounding observations.
	GapInterpolate GapPolicy = "interpolate"
	// GapReject treats any missing day as invalid input.
	GapReject GapPolicy = "reject"
)

// Valid reports whether the policy is a known value
func (p GapPolicy) Valid() bool {
	return p == GapInterpolate || p == GapReject
}

// MaxSeriesDays bounds the calendar span of a history, gaps included
const MaxSeriesDays = 3650

// civilDay numbers UTC calendar days from the Unix epoch
func civilDay(t time.Time) int64 {
	return t.Unix() / 86400
}

// Series is a validated, gap-free, chronologically ordered daily cost history
type Series struct {
	Dates        []time.Time
	Values       []float64
	Interpolated int
}

// Len returns the number of days in the series
func (s Series) Len() int {
	return len(s.Values)
}

// LastDate returns the final observed day
func (s Series) LastDate() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

// Last returns the final observed cost
func (s Series) Last() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	return s.Values[len(s.Values)-1]
}

// forecastDate returns the calendar day for forecast step i (0-based)
func (s Series) forecastDate(i int) time.Time {
	return s.LastDate().AddDate(0, 0, i+1)
}

func (s Series) forecastDateString(i int) string {
	return s.forecastDate(i).Format(models.DateLayout)
}

// NewSeries validates raw points and builds a Series.
func NewSeries(points []models.HistoricalPoint, policy GapPolicy) (Series, error) {
	if len(points) == 0 {
		return Series{}, utils.NewValidationError("historical series is empty")
	}
	if !policy.Valid() {
		policy = GapInterpolate
	}

	type parsed struct {
		date time.Time
		cost float64
	}
	rows := make([]parsed, 0, len(points))
	for i, p := range points {
		d, err := p.Day()
		if err != nil {
			return Series{}, utils.NewValidationErrorf("point %d: invalid date %q", i, p.Date)
		}
		if p.Cost.IsNegative() {
			return Series{}, utils.NewValidationErrorf("point %d: negative cost %s on %s", i, p.Cost.String(), p.Date)
		}
		rows = append(rows, parsed{date: d, cost: p.Cost.InexactFloat64()})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	first, last := rows[0].date, rows[len(rows)-1].date
	if span := civilDay(last) - civilDay(first) + 1; span > MaxSeriesDays {
		return Series{}, utils.NewValidationErrorf("history spans %d days from %s to %s, at most %d are supported",
			span, first.Format(models.DateLayout), last.Format(models.DateLayout), MaxSeriesDays)
	}

	s := Series{
		Dates:  make([]time.Time, 0, len(rows)),
		Values: make([]float64, 0, len(rows)),
	}
	for i, r := range rows {
		if i > 0 {
			prev := rows[i-1]
			gap := int(civilDay(r.date) - civilDay(prev.date))
			if gap == 0 {
				return Series{}, utils.NewValidationErrorf("duplicate date %s", r.date.Format(models.DateLayout))
			}
			if gap > 1 {
				if policy == GapReject {
					return Series{}, utils.NewValidationErrorf("missing %d day(s) after %s", gap-1, prev.date.Format(models.DateLayout))
				}
				step := (r.cost - prev.cost) / float64(gap)
				for k := 1; k < gap; k++ {
					s.Dates = append(s.Dates, prev.date.AddDate(0, 0, k))
					s.Values = append(s.Values, prev.cost+step*float64(k))
					s.Interpolated++
				}
			}
		}
		s.Dates = append(s.Dates, r.date)
		s.Values = append(s.Values, r.cost)
	}
	return s, nil
}
