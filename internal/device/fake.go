package device

import "errors"

// FakeSensor is a test double that returns scripted temperature samples.
type FakeSensor struct {
	// Samples contains scripted readings. Each call to Read() consumes
	// the next sample; when exhausted, the last sample repeats.
	Samples []Sample

	// ReadErrs, if non-empty, is consumed one error per Read call before
	// any samples are returned. A nil entry means "no error this call".
	ReadErrs []error

	// Closed tracks if Close was called.
	Closed bool

	index    int
	errIndex int
}

// NewFakeSensor creates a FakeSensor with the given samples.
func NewFakeSensor(samples []Sample) *FakeSensor {
	return &FakeSensor{Samples: samples}
}

// Read returns the next scripted sample or error.
func (f *FakeSensor) Read() (Sample, error) {
	if f.errIndex < len(f.ReadErrs) {
		err := f.ReadErrs[f.errIndex]
		f.errIndex++
		if err != nil {
			return Sample{}, err
		}
	}

	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the sensor to the beginning of its script.
func (f *FakeSensor) Reset() {
	f.index = 0
	f.errIndex = 0
	f.Closed = false
}

// FakeActuator records switching commands for test assertions.
type FakeActuator struct {
	// On is the current switch state.
	On bool

	// Switches records the state after every SetOn/SetOff call, in order.
	Switches []bool

	// OnErr and OffErr, if set, are returned by SetOn/SetOff.
	OnErr  error
	OffErr error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates a FakeActuator in the off state.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetOn records an on command.
func (f *FakeActuator) SetOn() error {
	if f.OnErr != nil {
		return f.OnErr
	}
	f.On = true
	f.Switches = append(f.Switches, true)
	return nil
}

// SetOff records an off command.
func (f *FakeActuator) SetOff() error {
	if f.OffErr != nil {
		return f.OffErr
	}
	f.On = false
	f.Switches = append(f.Switches, false)
	return nil
}

// Close marks the actuator as closed and forces it off.
func (f *FakeActuator) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// OnCount returns how many SetOn calls were recorded.
func (f *FakeActuator) OnCount() int {
	n := 0
	for _, s := range f.Switches {
		if s {
			n++
		}
	}
	return n
}

// OffCount returns how many SetOff calls were recorded.
func (f *FakeActuator) OffCount() int {
	return len(f.Switches) - f.OnCount()
}
