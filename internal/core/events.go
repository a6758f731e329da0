package core

// TimeLayout is the human-readable timestamp format used in lifecycle
// notifications and transcript headers.
const TimeLayout = "2006-01-02 15:04:05"

// Event is one unit of fan-out. Deliver pushes the event to a single target;
// the broadcaster treats any returned error as the target being unreachable.
type Event interface {
	Deliver(c PushClient) error
}

// MessageEvent carries an already formatted chat line ("<sender>: <text>",
// "<name> has joined", ...). The sender receives its own echo.
type MessageEvent struct {
	Text string
}

func (e MessageEvent) Deliver(c PushClient) error { return c.ReceiveMessage(e.Text) }

// PresenceEvent replaces the full name list a client holds. Full snapshots
// instead of deltas: a client that missed intermediate updates is corrected
// by the next one it receives.
type PresenceEvent struct {
	Names []string
}

func (e PresenceEvent) Deliver(c PushClient) error { return c.UpdateUserList(e.Names) }

// ChatStartedEvent announces a room going live.
type ChatStartedEvent struct {
	Timestamp string
}

func (e ChatStartedEvent) Deliver(c PushClient) error { return c.NotifyChatStarted(e.Timestamp) }

// ChatEndedEvent announces a room going dormant.
type ChatEndedEvent struct {
	Timestamp string
}

func (e ChatEndedEvent) Deliver(c PushClient) error { return c.NotifyChatEnded(e.Timestamp) }
