package forecast

import (
	"errors"
	"fmt"

	"github.com/irfndi/costcast/internal/models"
)

// FailureReason classifies why a forecaster produced no points
type FailureReason string

const (
	ReasonInsufficientData FailureReason = "insufficient_data"
	ReasonComputation      FailureReason = "computation_failure"
	ReasonExternalService  FailureReason = "external_service_failure"
	ReasonInvalidInput     FailureReason = "invalid_input"
)

var (
	ErrInsufficientData = errors.New("insufficient historical data")
	ErrNotConfigured    = errors.New("forecaster not configured")
	ErrMalformedOutput  = errors.New("malformed forecaster output")
)

// Failure is the error half of an Outcome
type Failure struct {
	Method models.ForecastMethod
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Method, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", f.Method, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Outcome is either a set of forecast points or a Failure, never both.
// Strategy names the algorithm that actually produced the points, which
// differs from the method when a fallback was used.
type Outcome struct {
	Method   models.ForecastMethod
	Strategy string
	Points   []models.ForecastPoint
	Failure  *Failure
}

// Succeed wraps points produced by the given strategy
func Succeed(method models.ForecastMethod, strategy string, points []models.ForecastPoint) Outcome {
	return Outcome{Method: method, Strategy: strategy, Points: points}
}

// Fail builds a failed Outcome
func Fail(method models.ForecastMethod, reason FailureReason, err error) Outcome {
	return Outcome{Method: method, Failure: &Failure{Method: method, Reason: reason, Err: err}}
}

// OK reports whether the outcome carries usable points
func (o Outcome) OK() bool {
	return o.Failure == nil && len(o.Points) > 0
}

// Err returns the failure as an error, or nil
func (o Outcome) Err() error {
	if o.Failure == nil {
		if len(o.Points) == 0 {
			return &Failure{Method: o.Method, Reason: ReasonComputation, Err: errors.New("no points produced")}
		}
		return nil
	}
	return o.Failure
}

// Attempt lazily produces an Outcome
type Attempt func() Outcome

// FirstOf runs attempts in order and returns the first successful outcome.
// When all fail, the first failure is returned since it explains why the
// preferred strategy was not used.
func FirstOf(attempts ...Attempt) Outcome {
	var first *Outcome
	for _, attempt := range attempts {
		out := attempt()
		if out.OK() {
			return out
		}
		if first == nil {
			failed := out
			if failed.Failure == nil {
				failed.Failure, _ = failed.Err().(*Failure)
			}
			first = &failed
		}
	}
	if first == nil {
		return Fail("", ReasonComputation, errors.New("no forecast attempts"))
	}
	return *first
}

// Guard converts a panic inside attempt into a computation failure
func Guard(method models.ForecastMethod, attempt Attempt) Attempt {
	return func() (out Outcome) {
		defer func() {
			if r := recover(); r != nil {
				out = Fail(method, ReasonComputation, fmt.Errorf("panic: %v", r))
			}
		}()
		return attempt()
	}
}
