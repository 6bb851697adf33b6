package embed

import (
	"path/filepath"
	"strings"
)

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`#`, `\#`,
	`%`, `\%`,
	`_`, `\_`,
	`^`, `\textasciicircum{}`,
	`~`, `\textasciitilde{}`,
	"\n", `\newline{}`,
)

// escapeLaTeX makes s safe to place in running LaTeX text.
func escapeLaTeX(s string) string {
	return latexEscaper.Replace(strings.TrimRight(s, "\n"))
}

// latexPath returns p with forward slashes, as \includegraphics expects.
func latexPath(p string) string {
	return filepath.ToSlash(p)
}
