package replay

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/windestimator/utils"
	"go.viam.com/windestimator/windestimator"
)

// Sample is one recorded airspeed measurement together with the filter estimate at that time.
type Sample struct {
	Time *time.Time `json:"time,omitempty"`
	// Velocity is the ground-relative velocity in north, east, down order.
	Velocity r3.Vector           `json:"velocity"`
	State    windestimator.State `json:"state"`
	// Covariance is row-major. When empty the runner's initial covariance is used.
	Covariance []float64 `json:"covariance,omitempty"`
	Airspeed   float64   `json:"airspeed"`
}

// Record is the output written for each fused sample.
type Record struct {
	Time               *time.Time `json:"time,omitempty"`
	H                  []float64  `json:"h"`
	K                  []float64  `json:"k"`
	InnovationVariance float64    `json:"innovation_variance"`
	Innovation         float64    `json:"innovation"`
	PredictedAirspeed  float64    `json:"predicted_airspeed"`
	RelativeVelocity   r3.Vector  `json:"relative_velocity"`
}

// NewRecord copies a Fusion into a Record stamped with t.
func NewRecord(t *time.Time, fusion *windestimator.Fusion) *Record {
	return &Record{
		Time:               t,
		H:                  mat.Col(nil, 0, fusion.H),
		K:                  mat.Col(nil, 0, fusion.K),
		InnovationVariance: fusion.InnovationVariance,
		Innovation:         fusion.Innovation,
		PredictedAirspeed:  fusion.PredictedAirspeed,
		RelativeVelocity:   fusion.RelativeVelocity,
	}
}

func (rec *Record) finite() bool {
	v := rec.RelativeVelocity
	return utils.IsFinite(rec.H...) && utils.IsFinite(rec.K...) &&
		utils.IsFinite(rec.InnovationVariance, rec.Innovation, rec.PredictedAirspeed, v.X, v.Y, v.Z)
}

// ParseSample decodes one JSON line. Unknown fields and a missing state are rejected.
func ParseSample(line []byte) (*Sample, error) {
	var s Sample
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "malformed sample")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("malformed sample: unexpected data after the sample object")
	}
	if s.State == (windestimator.State{}) {
		return nil, errors.New("sample has no state")
	}
	return &s, nil
}
