package runnotify

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the layout used for every date in a notification body.
const DateFormat = "2006-01-02 15:04:05"

// RenderFailedPlaceholder replaces a return value that could not be rendered.
const RenderFailedPlaceholder = "ERROR - Couldn't render the returned value."

// Kind identifies a lifecycle notification.
type Kind int

const (
	// KindStarted is sent before the wrapped call runs.
	KindStarted Kind = iota

	// KindSucceeded is sent after the wrapped call returned normally.
	KindSucceeded

	// KindCrashed is sent after the wrapped call failed or panicked.
	KindCrashed

	// KindMessage is a free-form message sent through Client.SendAll.
	KindMessage
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindSucceeded:
		return "succeeded"
	case KindCrashed:
		return "crashed"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Subject returns the fixed subject line for the kind.
func (k Kind) Subject() string {
	switch k {
	case KindStarted:
		return "Training has started 🎬"
	case KindSucceeded:
		return "Training has successfully finished 🎉"
	case KindCrashed:
		return "Training has crashed ☠️"
	case KindMessage:
		return "Notification"
	default:
		return "Training update"
	}
}

// Message is one lifecycle notification: a subject and ordered body lines.
type Message struct {
	Kind     Kind
	Subject  string
	Lines    []string
	Priority Priority
}

// Body joins the lines with newlines.
func (m *Message) Body() string {
	return strings.Join(m.Lines, "\n")
}

// ComposeStarted builds the "started" message for inv.
func ComposeStarted(inv *Invocation) *Message {
	return &Message{
		Kind:    KindStarted,
		Subject: KindStarted.Subject(),
		Lines: []string{
			"Your training has started.",
			"Machine name: " + inv.Host,
			"Main call: " + inv.Name,
			"Starting date: " + inv.Start.Format(DateFormat),
		},
		Priority: PriorityNormal,
	}
}

// ComposeSucceeded builds the "succeeded" message. rendered is the display form of
// the return value, or RenderFailedPlaceholder.
func ComposeSucceeded(inv *Invocation, rendered string) *Message {
	return &Message{
		Kind:    KindSucceeded,
		Subject: KindSucceeded.Subject(),
		Lines: []string{
			"Your training is complete.",
			"Machine name: " + inv.Host,
			"Main call: " + inv.Name,
			"Starting date: " + inv.Start.Format(DateFormat),
			"End date: " + inv.End.Format(DateFormat),
			"Training duration: " + FormatElapsed(inv.Elapsed()),
			"Main call returned value: " + rendered,
		},
		Priority: PriorityNormal,
	}
}

// ComposeCrashed builds the "crashed" message from the failure description and
// its stack trace.
func ComposeCrashed(inv *Invocation, failure, trace string) *Message {
	return &Message{
		Kind:    KindCrashed,
		Subject: KindCrashed.Subject(),
		Lines: []string{
			"Your training has crashed.",
			"Machine name: " + inv.Host,
			"Main call: " + inv.Name,
			"Starting date: " + inv.Start.Format(DateFormat),
			"Crash date: " + inv.End.Format(DateFormat),
			"Crashed training duration: " + FormatElapsed(inv.Elapsed()) + "\n\n",
			"Here's the error:",
			failure + "\n\n",
			"Traceback:",
			trace,
		},
		Priority: PriorityHigh,
	}
}

// FormatElapsed renders d as "[D day[s], ]H:MM:SS[.ffffff]".
// Negative durations are clamped to zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	micros := int64(d / time.Microsecond)
	days := micros / (24 * 3600 * 1e6)
	micros -= days * 24 * 3600 * 1e6
	hours := micros / (3600 * 1e6)
	micros -= hours * 3600 * 1e6
	minutes := micros / (60 * 1e6)
	micros -= minutes * 60 * 1e6
	seconds := micros / 1e6
	micros -= seconds * 1e6

	var b strings.Builder
	if days == 1 {
		b.WriteString("1 day, ")
	} else if days > 1 {
		fmt.Fprintf(&b, "%d days, ", days)
	}
	fmt.Fprintf(&b, "%d:%02d:%02d", hours, minutes, seconds)
	if micros > 0 {
		fmt.Fprintf(&b, ".%06d", micros)
	}
	return b.String()
}
