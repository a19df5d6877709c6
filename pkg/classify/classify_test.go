package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInlineClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Class
	}{
		{name: "plain", input: "Hello, how are you?", want: Plain},
		{name: "empty", input: "", want: Plain},
		{name: "single price", input: "That costs $1.50 today", want: Plain},
		{name: "two prices", input: "The cost is $1.50; another is $90", want: Plain},
		{name: "which is pretty cool", input: `The square root of x is denoted $\sqrt{x}$, which is pretty cool`, want: MathPresent},
		{name: "bare sqrt", input: `$\sqrt{x}$, which is pretty cool`, want: MathPresent},
		{name: "two in middle", input: `Hello! $3 + 5 = 7$ is one equation. $x = \frac{-b \pm \sqrt{b^2 - 4ac}}{2a}$ is another one.`, want: MathPresent},
		{name: "start", input: "$abc$ was at the start", want: MathPresent},
		{name: "end", input: "at the end is $abc$", want: MathPresent},
		{name: "start and end", input: "$abc$", want: MathPresent},
		{name: "environment", input: `\begin{center} abc \end{center}`, want: MathPresent},
		{name: "environment surrounded", input: `will be centered; \begin{center} abc \end{center}; was centered.`, want: MathPresent},
		{name: "control and zero width", input: "\x00\x1b[31m​💸$5‍", want: Plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Inline{}).Classify(tt.input); got != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInlineExtractIsWholeMessage(t *testing.T) {
	input := "area is $\\pi r^2$."
	got := (Inline{}).Extract(input)
	want := []Fragment{{Text: input}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}

	if got := (Inline{}).Extract("no maths here, only $5"); got != nil {
		t.Fatalf("Extract plain = %#v, want nil", got)
	}
}

func TestFencedExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "plain", input: "Hello, how are you?", want: nil},
		{name: "prices", input: "The cost is $1.50; another is $90", want: nil},
		{name: "unfenced dollars", input: `$\sqrt{x}$, which is pretty cool`, want: nil},
		{name: "two fragments", input: "Hello! `$3 + 5 = 7$` is one. `$x = y$` is another.", want: []string{"3 + 5 = 7", "x = y"}},
		{name: "adjacent fences", input: "`$abc$``$xyz$`", want: nil},
		{name: "separated by text", input: "`$lol$`rofl`$kek$`", want: []string{"lol", "kek"}},
		{name: "separated by single space", input: "`$a$` `$b$`", want: []string{"a", "b"}},
		{name: "whole message", input: "`$\\frac{1}{2}$`", want: []string{`\frac{1}{2}`}},
		{name: "stray dollar before", input: "$`$x$`", want: nil},
		{name: "stray dollar after", input: "`$x$`$", want: nil},
		{name: "empty fence", input: "`$$`", want: nil},
		{name: "multiline", input: "`$a\n+ b$`", want: []string{"a\n+ b"}},
		{name: "emoji around", input: "🎉`$e^{i\\pi}$`🎉", want: []string{`e^{i\pi}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts((Fenced{}).Extract(tt.input))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Extract(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}

			wantClass := Plain
			if len(tt.want) > 0 {
				wantClass = MathPresent
			}
			if got := (Fenced{}).Classify(tt.input); got != wantClass {
				t.Fatalf("Classify(%q) = %v, want %v", tt.input, got, wantClass)
			}
		})
	}
}

func TestFencedFragmentsAreMath(t *testing.T) {
	for _, fragment := range (Fenced{}).Extract("`$a$` and `$b$`") {
		if !fragment.Math {
			t.Fatalf("fragment %q not marked as math", fragment.Text)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	input := "Hello! `$3 + 5 = 7$` is one. `$x = y$` is another."
	for _, grammar := range []Grammar{Fenced{}, Inline{}} {
		first := grammar.Extract(input)
		for range 5 {
			if diff := cmp.Diff(first, grammar.Extract(input)); diff != "" {
				t.Fatalf("%s Extract not deterministic (-first +again):\n%s", grammar.Name(), diff)
			}
		}
	}
}

func TestForName(t *testing.T) {
	for name, want := range map[string]string{"": "fenced", "fenced": "fenced", " INLINE ": "inline"} {
		grammar, err := ForName(name)
		if err != nil {
			t.Fatalf("ForName(%q) error: %v", name, err)
		}
		if grammar.Name() != want {
			t.Fatalf("ForName(%q) = %q, want %q", name, grammar.Name(), want)
		}
	}

	if _, err := ForName("brackets"); err == nil {
		t.Fatal("expected error for unknown grammar")
	}
}

func texts(fragments []Fragment) []string {
	if len(fragments) == 0 {
		return nil
	}

	out := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		out = append(out, fragment.Text)
	}

	return out
}
