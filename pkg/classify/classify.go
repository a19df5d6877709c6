// Package classify decides whether chat text contains renderable math and extracts the
// fragments to typeset.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

type Class int

const (
	Plain Class = iota
	MathPresent
)

func (c Class) String() string {
	if c == MathPresent {
		return "math"
	}

	return "plain"
}

// Fragment is one unit of markup submitted to the renderer. Math fragments are typeset inside a
// display-style math block; text fragments are inserted into the document body as-is.
type Fragment struct {
	Text string
	Math bool
}

// Grammar is one delimiter convention. Implementations are pure and safe for concurrent use.
type Grammar interface {
	Name() string
	Classify(text string) Class
	Extract(text string) []Fragment
}

// ForName returns the grammar registered under name ("fenced" or "inline").
func ForName(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", fenced.Name():
		return fenced, nil
	case inline.Name():
		return inline, nil
	default:
		return nil, fmt.Errorf("unknown classifier grammar %q", name)
	}
}

var (
	fenced = Fenced{}
	inline = Inline{}
)

// Inline treats a message as math when it has a $...$ span whose closing dollar is not
// followed by a digit, or a \begin environment opener. The whole message is one text fragment.
type Inline struct{}

var inlinePattern = regexp.MustCompile(`\$.*\$($|[^0-9])|\\begin`)

func (Inline) Name() string { return "inline" }

func (Inline) Classify(text string) Class {
	if inlinePattern.MatchString(text) {
		return MathPresent
	}

	return Plain
}

func (g Inline) Extract(text string) []Fragment {
	if g.Classify(text) == Plain {
		return nil
	}

	return []Fragment{{Text: text}}
}

// Fenced extracts fragments written as `$ ... $`. A fence touching a stray dollar or backtick on
// its outer side is ignored, so two fences written back to back yield nothing for that junction.
type Fenced struct{}

var fencedPattern = regexp.MustCompile("`\\$([^$]+)\\$`")

func (Fenced) Name() string { return "fenced" }

func (g Fenced) Classify(text string) Class {
	if len(g.Extract(text)) > 0 {
		return MathPresent
	}

	return Plain
}

func (Fenced) Extract(text string) []Fragment {
	var fragments []Fragment
	for _, loc := range fencedPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isFenceNeighbour(text[start-1]) {
			continue
		}
		if end < len(text) && isFenceNeighbour(text[end]) {
			continue
		}

		fragments = append(fragments, Fragment{Text: text[loc[2]:loc[3]], Math: true})
	}

	return fragments
}

func isFenceNeighbour(b byte) bool {
	return b == '$' || b == '`'
}
