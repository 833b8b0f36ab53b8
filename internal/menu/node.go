// Package menu holds the immutable USSD navigation tree: a declarative
// table of screens, valid inputs and transitions. The tree never touches
// transport framing or the data gateway; it resolves (node, input) pairs
// and renders prompt text from values the caller supplies.
package menu

import "strings"

// Fetch kinds a node may require before rendering.
const (
	FetchNone    = ""
	FetchPrice   = "price"
	FetchWeather = "weather"
	FetchTip     = "tip"
	FetchBalance = "balance"
)

// WildcardInput on an edge matches any non-empty input. The matched text
// is recorded into the session's collected inputs.
const WildcardInput = "*"

// Edge maps one valid input to a child node.
type Edge struct {
	Input string `yaml:"input"`
	Next  string `yaml:"next"`
}

// Node is one screen in the menu tree.
type Node struct {
	ID       string `yaml:"id"`
	Prompt   string `yaml:"prompt"`
	Terminal bool   `yaml:"terminal"`
	Fetch    string `yaml:"fetch"` // one of the Fetch* kinds
	Edges    []Edge `yaml:"edges"`
	Back     string `yaml:"back"` // explicit back edge target, "" = none
}

// Resolution is the outcome of resolving an input against a node.
type Resolution struct {
	Next     *Node
	Captured bool // input matched a wildcard edge and should be recorded
	Back     bool // input followed the explicit back edge
	Reject   bool // input matched nothing; re-prompt the current node
}

// Render substitutes {name} placeholders in prompt with vals. Unknown
// placeholders are left as-is; prompts are short flat strings, so plain
// replacement is all that is needed.
func Render(prompt string, vals map[string]string) string {
	out := prompt
	for k, v := range vals {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
