package cli

import (
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// isAccessibleMode: set ACCESSIBLE to any non-empty value for simpler
// prompts that work better with screen readers.
func isAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

// newAccessibleForm wraps huh.NewForm with a consistent theme and
// accessibility toggle, so every interactive prompt in this CLI looks
// and behaves the same way.
func newAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if isAccessibleMode() {
		form = form.WithAccessible(true)
	}
	return form
}

// isInteractiveTerminal reports whether stdout is a real terminal, used
// to decide whether `add` can offer its wizard instead of requiring every
// option as a flag.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
