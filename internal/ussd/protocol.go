// Package ussd implements the callback state machine that drives one
// carrier keypress through the menu tree. Carrier framing (CON/END) stays
// in this package's boundary types so the tree and store remain
// transport-agnostic.
package ussd

import "strings"

// Callback is one inbound carrier HTTP callback, one per keypress.
//
// Text convention (fixed, do not change without migrating carriers): the
// carrier sends the *cumulative* input history joined by "*", e.g. "1*MAIZE"
// after the caller pressed "1" then typed "MAIZE". Segments normalizes this
// to discrete inputs at the boundary; the state machine only ever sees the
// latest segment.
type Callback struct {
	SessionID   string
	Phone       string
	Text        string
	ServiceCode string
}

// Reply is the response screen for one callback.
type Reply struct {
	End  bool // end the carrier session after this screen
	Text string
}

// Encode renders the carrier envelope: "CON <text>" keeps the session
// open, "END <text>" closes it.
func (r Reply) Encode() string {
	if r.End {
		return "END " + r.Text
	}
	return "CON " + r.Text
}

// Segments splits cumulative callback text into discrete inputs. Empty
// text (the dial-in callback) yields nil.
func Segments(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "*")
}
