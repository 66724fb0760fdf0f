package mqtt

// Message is a publish recorded by FakeTransport.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// ConnectCall records a Connect invocation.
type ConnectCall struct {
	ClientID string
	Will     Will
}

// FakeTransport records traffic for test assertions and simulates a broker.
type FakeTransport struct {
	// Connected controls the return value of IsConnected.
	Connected bool

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Connects lists every Connect call, successful or not.
	Connects []ConnectCall

	// Published contains all messages that were accepted.
	Published []Message

	// WillsFired contains the wills the broker published after Drop.
	WillsFired []Message

	// Pumps counts Pump calls.
	Pumps int

	// Disconnects counts Disconnect calls.
	Disconnects int

	will *Will
}

// NewFakeTransport creates a disconnected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Connect records the call and, unless ConnectError is set, goes online.
func (f *FakeTransport) Connect(clientID string, will Will) error {
	f.Connects = append(f.Connects, ConnectCall{ClientID: clientID, Will: will})
	if f.ConnectError != nil {
		return f.ConnectError
	}
	w := will
	f.will = &w
	f.Connected = true
	return nil
}

// Publish records the message.
func (f *FakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !f.Connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

// IsConnected reports whether the fake is "connected".
func (f *FakeTransport) IsConnected() bool {
	return f.Connected
}

// Pump counts the call.
func (f *FakeTransport) Pump() {
	f.Pumps++
}

// Disconnect goes offline cleanly; no will is fired.
func (f *FakeTransport) Disconnect() {
	f.Disconnects++
	f.Connected = false
	f.will = nil
}

// Drop simulates an unclean link loss: the broker publishes the will.
func (f *FakeTransport) Drop() {
	if f.will != nil {
		f.WillsFired = append(f.WillsFired, Message{
			Topic:    f.will.Topic,
			QoS:      f.will.QoS,
			Retained: f.will.Retained,
			Payload:  []byte(f.will.Payload),
		})
		f.will = nil
	}
	f.Connected = false
}

// OnTopic returns the published messages for topic, in order.
func (f *FakeTransport) OnTopic(topic string) []Message {
	var out []Message
	for _, m := range f.Published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Reset clears recorded traffic.
func (f *FakeTransport) Reset() {
	f.Connects = nil
	f.Published = nil
	f.WillsFired = nil
	f.Pumps = 0
	f.Disconnects = 0
	f.ConnectError = nil
	f.PublishError = nil
}
