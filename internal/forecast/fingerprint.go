package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// forecastNamespace scopes name-based forecast IDs
var forecastNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/irfndi/costcast/forecast"))

type fingerprintPayload struct {
	History   []fingerprintPoint `json:"history"`
	Horizon   int                `json:"horizon"`
	Methods   []string           `json:"methods"`
	GapPolicy GapPolicy          `json:"gap_policy"`
}

type fingerprintPoint struct {
	Date string `json:"d"`
	Cost string `json:"c"`
}

// Fingerprint returns a stable hash of a request after defaults are applied.
// Two requests with the same fingerprint produce the same result apart from
// the generation timestamp.
func (e *Engine) Fingerprint(req Request) string {
	horizon, _ := e.resolveHorizon(req.Horizon)

	payload := fingerprintPayload{
		History:   make([]fingerprintPoint, len(req.History)),
		Horizon:   horizon,
		GapPolicy: e.cfg.GapPolicy,
	}
	for i, p := range req.History {
		payload.History[i] = fingerprintPoint{Date: p.Date, Cost: p.Cost.String()}
	}
	sort.SliceStable(payload.History, func(i, j int) bool {
		return payload.History[i].Date < payload.History[j].Date
	})

	selected, _ := e.registry.Select(e.requestedMethods(req))
	for _, f := range selected {
		payload.Methods = append(payload.Methods, string(f.Method()))
	}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func forecastID(fingerprint string) string {
	return uuid.NewSHA1(forecastNamespace, []byte(fingerprint)).String()
}

// ScopedForecastID derives the id a result is stored under for one owner.
// Identical requests from different clients share a fingerprint and a cache
// entry but never a stored id.
func ScopedForecastID(forecastID, scope string) string {
	if scope == "" {
		return forecastID
	}
	return uuid.NewSHA1(forecastNamespace, []byte(scope+"/"+forecastID)).String()
}
