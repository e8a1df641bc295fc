package relay

// UI is the rendering surface the relay drives. The browser widget, the
// terminal client, and test fakes all implement it.
type UI interface {
	// AppendUser adds a user-authored bubble to the visible log.
	AppendUser(text string)
	// AppendBot adds an assistant bubble to the visible log.
	AppendBot(text string)
	// SetTyping toggles the transient typing indicator.
	SetTyping(active bool)
	// SetSendEnabled toggles the send control.
	SetSendEnabled(enabled bool)
	// Focus returns input focus to the message field.
	Focus()
}
