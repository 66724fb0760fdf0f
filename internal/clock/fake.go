package clock

// Fake is a manually driven Source for tests.
type Fake struct {
	T Millis
}

// NewFake creates a Fake starting at t.
func NewFake(t Millis) *Fake {
	return &Fake{T: t}
}

// Now returns the current fake time.
func (f *Fake) Now() Millis {
	return f.T
}

// Advance moves the fake time forward by ms, wrapping like the real counter.
func (f *Fake) Advance(ms uint32) {
	f.T += Millis(ms)
}
