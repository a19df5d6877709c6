package render

import (
	"strings"

	"mathbot/pkg/classify"
)

const (
	texName = "maths.tex"
	pdfName = "maths.pdf"
	pngName = "maths.png"

	documentPreamble = "\\documentclass[varwidth]{standalone}\n" +
		"\\usepackage{amsmath}\n" +
		"\\begin{document}\n"
	documentPostamble = "\\end{document}\n"
)

// Document wraps fragments in a standalone document. Math fragments become display-style math
// paragraphs; text fragments are inserted as-is. Fragment text is never escaped.
func Document(fragments []classify.Fragment) string {
	var b strings.Builder
	b.WriteString(documentPreamble)

	for i, fragment := range fragments {
		if i > 0 {
			b.WriteString("\n")
		}
		if fragment.Math {
			b.WriteString("$ \\displaystyle\n")
			b.WriteString(fragment.Text)
			b.WriteString("\n$\n")
			continue
		}
		b.WriteString(fragment.Text)
		b.WriteString("\n")
	}

	b.WriteString(documentPostamble)
	return b.String()
}
