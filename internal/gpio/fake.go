package gpio

import "errors"

// FakeReader is a test double that returns scripted GPIO levels.
type FakeReader struct {
	// Samples contains scripted raw levels to return, one slice per Read.
	// Each call to Read() consumes the next sample.
	Samples [][]bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples [][]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}

	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	out := make([]bool, len(sample))
	copy(out, sample)
	return out, nil
}

// Push appends a sample; the reader moves onto it once the current one is consumed.
func (f *FakeReader) Push(sample []bool) {
	f.Samples = append(f.Samples, sample)
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// Write records a single LED change.
type Write struct {
	LED LED
	On  bool
}

// FakeWriter records LED writes for test assertions.
type FakeWriter struct {
	// State is the current level of each LED that has been written.
	State map[LED]bool

	// Writes lists every Set call in order.
	Writes []Write

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeWriter creates a FakeWriter with every LED off.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{State: make(map[LED]bool)}
}

// Set records the write.
func (f *FakeWriter) Set(led LED, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.State[led] = on
	f.Writes = append(f.Writes, Write{LED: led, On: on})
	return nil
}

// Close turns every LED off and marks the writer as closed.
func (f *FakeWriter) Close() error {
	for led := range f.State {
		f.State[led] = false
	}
	f.Closed = true
	return nil
}

// WritesFor returns the recorded levels written to led, in order.
func (f *FakeWriter) WritesFor(led LED) []bool {
	var out []bool
	for _, w := range f.Writes {
		if w.LED == led {
			out = append(out, w.On)
		}
	}
	return out
}
