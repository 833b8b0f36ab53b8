package ussd

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dahamkakooza/agrogram-gateway/internal/data"
	"github.com/dahamkakooza/agrogram-gateway/internal/menu"
	"github.com/dahamkakooza/agrogram-gateway/internal/session"
)

const (
	cancelledText = "Session cancelled. Dial again anytime."
	rejectPrefix  = "Invalid choice.\n"
)

// Handler advances one session per callback. The carrier drops sessions
// that wait more than a few seconds, so every suspension point below is
// bounded by FetchTimeout and every path returns a screen.
type Handler struct {
	Tree         *menu.Tree
	Sessions     *session.Store
	Data         data.Gateway
	FetchTimeout time.Duration
}

func NewHandler(tree *menu.Tree, store *session.Store, gw data.Gateway, fetchTimeout time.Duration) *Handler {
	return &Handler{Tree: tree, Sessions: store, Data: gw, FetchTimeout: fetchTimeout}
}

// Handle runs the state machine for one callback and always returns a
// screen. All work on the session happens under its per-id lock, so a
// duplicate carrier retry serializes behind the original.
func (h *Handler) Handle(ctx context.Context, cb Callback) Reply {
	unlock := h.Sessions.Lock(cb.SessionID)
	defer unlock()

	sess, created := h.Sessions.GetOrCreate(cb.SessionID, cb.Phone, h.Tree.Root().ID)
	segs := Segments(cb.Text)

	// New session, or the dial-in callback with no input yet: show the
	// current (root) screen without transitioning. A fresh session created
	// from a retried mid-dialog callback lands here too; marking all
	// segments handled means the next keypress yields exactly one new one.
	if created || len(segs) == 0 {
		sess.Handled = len(segs)
		h.Sessions.Save(sess)
		return h.render(ctx, sess, h.Tree.Node(sess.NodeID), "")
	}

	// Duplicate delivery: the carrier retried a callback we already
	// consumed. Re-render the current screen; do not advance.
	if len(segs) <= sess.Handled {
		h.Sessions.Save(sess)
		return h.render(ctx, sess, h.Tree.Node(sess.NodeID), "")
	}

	input := segs[len(segs)-1]
	sess.Handled = len(segs)

	if input == h.Tree.CancelInput() {
		h.Sessions.Expire(sess.ID)
		return Reply{End: true, Text: cancelledText}
	}

	res := h.Tree.Resolve(sess.NodeID, input)
	if res.Reject {
		h.Sessions.Save(sess)
		return h.render(ctx, sess, h.Tree.Node(sess.NodeID), rejectPrefix)
	}

	if res.Back {
		sess.GoBack(res.Next.ID)
	} else {
		sess.Enter(res.Next.ID)
		if res.Captured {
			sess.Inputs = append(sess.Inputs, input)
		}
	}

	reply := h.render(ctx, sess, res.Next, "")
	if reply.End {
		h.Sessions.Expire(sess.ID)
	} else {
		h.Sessions.Save(sess)
	}
	return reply
}

// render produces the screen for a node. Data-fetch failures fall back to
// the static unavailable leaf and end the session rather than holding the
// carrier connection open.
func (h *Handler) render(ctx context.Context, sess *session.Session, n *menu.Node, prefix string) Reply {
	vals, err := h.fetch(ctx, sess, n)
	if err != nil {
		slog.Warn("data fetch failed, falling back", "node", n.ID, "session", sess.ID, "error", err)
		fallback := h.Tree.Node(menu.UnavailableID)
		h.Sessions.Expire(sess.ID)
		return Reply{End: true, Text: fallback.Prompt}
	}
	return Reply{End: n.Terminal, Text: prefix + menu.Render(n.Prompt, vals)}
}

// fetch performs the node's data-gateway call, if any, under a strict
// timeout. A late result after the deadline is simply discarded with the
// context.
func (h *Handler) fetch(ctx context.Context, sess *session.Session, n *menu.Node) (map[string]string, error) {
	vals := map[string]string{"phone": sess.Phone}
	if n.Fetch == menu.FetchNone {
		return vals, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.FetchTimeout)
	defer cancel()

	lastInput := ""
	if len(sess.Inputs) > 0 {
		lastInput = sess.Inputs[len(sess.Inputs)-1]
	}

	switch n.Fetch {
	case menu.FetchPrice:
		quote, err := h.Data.LatestPrice(ctx, lastInput, "")
		if err != nil {
			return nil, err
		}
		vals["crop"] = quote.Crop
		vals["price"] = strconv.FormatFloat(quote.Price, 'f', -1, 64)
		vals["currency"] = quote.Currency
		vals["unit"] = quote.Unit
		vals["region"] = quote.Region
	case menu.FetchWeather:
		report, err := h.Data.Weather(ctx, lastInput)
		if err != nil {
			return nil, err
		}
		vals["region"] = report.Region
		vals["summary"] = report.Summary
		vals["tempC"] = strconv.Itoa(report.TempC)
	case menu.FetchTip:
		tip, err := h.Data.Tip(ctx, lastInput)
		if err != nil {
			return nil, err
		}
		vals["crop"] = tip.Crop
		vals["tip"] = tip.Text
	case menu.FetchBalance:
		bal, err := h.Data.Balance(ctx, sess.Phone)
		if err != nil {
			return nil, err
		}
		vals["amount"] = strconv.FormatFloat(bal.Amount, 'f', -1, 64)
		vals["currency"] = bal.Currency
	}
	return vals, nil
}
