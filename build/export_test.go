package build

import "time"

// SetNow overrides the builder's clock.
func (d *Docker) SetNow(now func() time.Time) {
	d.now = now
}

// SetNow overrides the builder's clock.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}
