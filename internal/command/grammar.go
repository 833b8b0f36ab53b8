// Package command parses inbound SMS against a declarative keyword
// grammar and dispatches to handlers. The dispatcher's contract is that
// every inbound message produces exactly one reply: a silent drop is
// indistinguishable from network loss to someone on a feature phone.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dahamkakooza/agrogram-gateway/internal/data"
)

const unavailableReply = "Service temporarily unavailable. Please try again later."

// Command is one parsed SMS request. Ephemeral: it lives for the duration
// of dispatch and is never retried; only the reply goes through the outbox.
type Command struct {
	Keyword    string
	Args       []string
	Origin     string
	ReceivedAt time.Time
}

// HandlerFunc produces the reply text for a parsed command.
type HandlerFunc func(ctx context.Context, cmd Command) (string, error)

// Validator checks one argument token. Returning an error triggers the
// keyword's usage reply.
type Validator func(arg string) error

// Spec declares one keyword: its argument shape and handler binding.
type Spec struct {
	Keyword  string
	MinArgs  int
	MaxArgs  int // -1 = unbounded
	Usage    string
	Validate []Validator // positional; extra args reuse the last validator
	Handler  HandlerFunc
}

// Registry is the grammar table.
type Registry struct {
	specs map[string]*Spec
	gw    data.Gateway // command analytics, best-effort
}

func NewRegistry(gw data.Gateway) *Registry {
	return &Registry{specs: make(map[string]*Spec), gw: gw}
}

// Register adds a keyword spec. Keywords are case-insensitive; the table
// stores them uppercased.
func (r *Registry) Register(spec Spec) {
	spec.Keyword = strings.ToUpper(spec.Keyword)
	r.specs[spec.Keyword] = &spec
}

// Keywords returns the registered keywords, sorted.
func (r *Registry) Keywords() []string {
	out := make([]string, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch parses body and always returns a reply. Unknown keywords get
// the generic help; arity or validation failures get the keyword's usage
// reply; handler failures degrade to the generic unavailable reply.
func (r *Registry) Dispatch(ctx context.Context, origin, body string) string {
	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return r.helpReply()
	}

	cmd := Command{
		Keyword:    strings.ToUpper(tokens[0]),
		Args:       tokens[1:],
		Origin:     origin,
		ReceivedAt: time.Now(),
	}

	spec, ok := r.specs[cmd.Keyword]
	if !ok {
		return r.helpReply()
	}

	if len(cmd.Args) < spec.MinArgs || (spec.MaxArgs >= 0 && len(cmd.Args) > spec.MaxArgs) {
		return "Usage: " + spec.Usage
	}
	for i, arg := range cmd.Args {
		v := validatorAt(spec.Validate, i)
		if v == nil {
			continue
		}
		if err := v(arg); err != nil {
			return fmt.Sprintf("%v. Usage: %s", err, spec.Usage)
		}
	}

	r.record(cmd)

	reply, err := spec.Handler(ctx, cmd)
	if err != nil {
		slog.Warn("command handler failed", "keyword", cmd.Keyword, "origin", cmd.Origin, "error", err)
		return unavailableReply
	}
	return reply
}

func (r *Registry) helpReply() string {
	return "Agrogram commands: " + strings.Join(r.Keywords(), ", ") +
		". Example: PRICE MAIZE"
}

// record posts the command to the marketplace for usage analytics.
// Best-effort: failure is logged and never affects the reply.
func (r *Registry) record(cmd Command) {
	if r.gw == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := r.gw.RecordCommand(ctx, data.CommandRecord{
			Keyword:    cmd.Keyword,
			Args:       cmd.Args,
			Origin:     cmd.Origin,
			ReceivedAt: cmd.ReceivedAt,
		})
		if err != nil {
			slog.Debug("command analytics record failed", "keyword", cmd.Keyword, "error", err)
		}
	}()
}

func validatorAt(vs []Validator, i int) Validator {
	if len(vs) == 0 {
		return nil
	}
	if i < len(vs) {
		return vs[i]
	}
	return vs[len(vs)-1]
}

// AlphaToken accepts crop/region style tokens: letters only, 2-30 chars.
func AlphaToken(kind string) Validator {
	return func(arg string) error {
		if len(arg) < 2 || len(arg) > 30 {
			return fmt.Errorf("invalid %s %q", kind, arg)
		}
		for _, c := range arg {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
				return fmt.Errorf("invalid %s %q", kind, arg)
			}
		}
		return nil
	}
}
