package forecast

import (
	"context"

	"github.com/irfndi/costcast/internal/models"
)

// Forecaster produces daily predictions for a validated history.
// Implementations must not keep per-call state so one instance can serve
// concurrent requests.
type Forecaster interface {
	Method() models.ForecastMethod
	Forecast(ctx context.Context, s Series, horizon int) Outcome
}

// Registry is an ordered set of forecasters keyed by method
type Registry struct {
	order []models.ForecastMethod
	byTag map[models.ForecastMethod]Forecaster
}

// NewRegistry registers forecasters in the given order. A later forecaster
// with the same method replaces the earlier one in place.
func NewRegistry(forecasters ...Forecaster) *Registry {
	r := &Registry{byTag: make(map[models.ForecastMethod]Forecaster)}
	for _, f := range forecasters {
		r.Register(f)
	}
	return r
}

// Register adds or replaces a forecaster
func (r *Registry) Register(f Forecaster) {
	if f == nil {
		return
	}
	m := f.Method()
	if _, exists := r.byTag[m]; !exists {
		r.order = append(r.order, m)
	}
	r.byTag[m] = f
}

// Get returns the forecaster for a method
func (r *Registry) Get(m models.ForecastMethod) (Forecaster, bool) {
	f, ok := r.byTag[m]
	return f, ok
}

// Methods lists registered methods in registration order
func (r *Registry) Methods() []models.ForecastMethod {
	out := make([]models.ForecastMethod, len(r.order))
	copy(out, r.order)
	return out
}

// Select resolves the requested methods in registry order. An empty request,
// or one naming ENSEMBLE, selects everything registered. Unknown methods are returned separately so
// the caller can report them.
func (r *Registry) Select(requested []models.ForecastMethod) (selected []Forecaster, unknown []models.ForecastMethod) {
	if len(requested) == 0 {
		for _, m := range r.order {
			selected = append(selected, r.byTag[m])
		}
		return selected, nil
	}

	want := make(map[models.ForecastMethod]bool, len(requested))
	all := false
	for _, m := range requested {
		if m == models.MethodEnsemble {
			all = true
			continue
		}
		if _, ok := r.byTag[m]; !ok {
			unknown = append(unknown, m)
			continue
		}
		want[m] = true
	}
	for _, m := range r.order {
		if all || want[m] {
			selected = append(selected, r.byTag[m])
		}
	}
	return selected, unknown
}
