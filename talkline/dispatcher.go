package talkline

// Dispatcher routes outbound events to registered callbacks.
// Dispatch is called from the client's single read loop, so callbacks
// observe events in delivery order.
type Dispatcher struct {
	onMessage  func(MessageEvent)
	onPresence func(PresenceEvent)
	onError    func(error)
}

func (d *Dispatcher) SetOnMessage(fn func(MessageEvent))   { d.onMessage = fn }
func (d *Dispatcher) SetOnPresence(fn func(PresenceEvent)) { d.onPresence = fn }
func (d *Dispatcher) SetOnError(fn func(error))            { d.onError = fn }

func (d *Dispatcher) Dispatch(out Outbound) {
	if out.Type == outboundError && out.Error != nil && d.onError != nil {
		d.onError(FromProtocolError(out.Error))
		return
	}
	switch out.Event {
	case eventReceiveMessage:
		if d.onMessage == nil {
			return
		}
		var ev MessageEvent
		if err := UnmarshalData(out.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal receive-message event", err))
			return
		}
		d.onMessage(ev)
	case eventUserList:
		if d.onPresence == nil {
			return
		}
		var ev PresenceEvent
		if err := UnmarshalData(out.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal user-list event", err))
			return
		}
		d.onPresence(ev)
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
