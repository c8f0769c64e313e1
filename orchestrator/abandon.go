package orchestrator

// Abandonment decides when to stop watching one profile. Below MinSample
// items no decision is made; from then on the profile is dropped as soon as
// the relevant share falls strictly below MinRatio.
type Abandonment struct {
	MinSample int
	MinRatio  float64

	Seen     int
	Relevant int
}

func NewAbandonment(minSample int, minRatio float64) *Abandonment {
	return &Abandonment{MinSample: minSample, MinRatio: minRatio}
}

// Observe counts one item of the profile.
func (a *Abandonment) Observe(relevant bool) {
	a.Seen++
	if relevant {
		a.Relevant++
	}
}

func (a *Abandonment) ShouldAbandon() bool {
	if a.Seen < a.MinSample || a.Seen == 0 {
		return false
	}
	return float64(a.Relevant)/float64(a.Seen) < a.MinRatio
}
