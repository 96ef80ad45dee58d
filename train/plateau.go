package train

import (
	"math"

	"github.com/retortml/retort/model"
)

// Reduce-on-plateau schedule, matching the usual defaults: cut the rate to a
// tenth after ten consecutive epochs without a relative improvement of at
// least 1e-4.
const (
	plateauFactor    = 0.1
	plateauPatience  = 10
	plateauThreshold = 1e-4
)

// Plateau drives one model's learning rate down when the validation loss it
// monitors stops improving. Each model gets its own scheduler, so the two
// adversaries can sit at different effective rates at any epoch.
type Plateau struct {
	target model.Trainable

	best float64
	bad  int
}

// NewPlateau ...
func NewPlateau(target model.Trainable) *Plateau {
	return &Plateau{
		target: target,
		best:   math.Inf(1),
	}
}

// Step feeds one epoch's validation loss into the schedule
func (p *Plateau) Step(loss float64) {
	if loss < p.best*(1-plateauThreshold) {
		p.best = loss
		p.bad = 0
		return
	}
	p.bad++
	if p.bad > plateauPatience {
		p.target.SetLR(p.target.LR() * plateauFactor)
		p.bad = 0
	}
}
