package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/repoconfig"
)

// promptAddWizard collects the same settings the add command's flags would,
// for a developer running `autocommitd add <path>` bare in an interactive
// terminal: a single huh.Form with one group per setting.
func promptAddWizard(cfg *repoconfig.RepositoryConfig) error {
	throttle := strconv.FormatInt(cfg.ThrottleMS, 10)
	maxSize := strconv.FormatInt(cfg.MaxFileBytes, 10)
	var excludeLine string
	notif := string(cfg.Notification)
	pauseOnDefault := cfg.PauseOnDefault

	form := newAccessibleForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Shadow commit throttle (ms)").
				Description("Minimum interval between shadow commits; floored at 500ms.").
				Value(&throttle).
				Validate(func(s string) error {
					n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
					if err != nil {
						return fmt.Errorf("must be a whole number of milliseconds")
					}
					if n < 0 {
						return fmt.Errorf("must not be negative")
					}
					return nil
				}),
			huh.NewInput().
				Title("Max file size (bytes)").
				Description("Files larger than this are skipped.").
				Value(&maxSize).
				Validate(func(s string) error {
					n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
					if err != nil || n <= 0 {
						return fmt.Errorf("must be a positive number of bytes")
					}
					return nil
				}),
			huh.NewInput().
				Title("Exclusion patterns").
				Description("Comma-separated gitignore-style globs, e.g. *.log, vendor/**").
				Value(&excludeLine),
			huh.NewSelect[string]().
				Title("Notification preference").
				Options(
					huh.NewOption("Every commit", string(repoconfig.NotifyEveryCommit)),
					huh.NewOption("Batched", string(repoconfig.NotifyBatchedN)),
					huh.NewOption("Hourly summary", string(repoconfig.NotifyHourlySummary)),
					huh.NewOption("Disabled", string(repoconfig.NotifyDisabled)),
				).
				Value(&notif),
			huh.NewConfirm().
				Title("Pause auto-commit on the repository's default branch?").
				Value(&pauseOnDefault),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	throttleMS, err := strconv.ParseInt(strings.TrimSpace(throttle), 10, 64)
	if err != nil {
		return fmt.Errorf("parse throttle: %w", err)
	}
	maxFileBytes, err := strconv.ParseInt(strings.TrimSpace(maxSize), 10, 64)
	if err != nil {
		return fmt.Errorf("parse max size: %w", err)
	}

	cfg.ThrottleMS = throttleMS
	cfg.MaxFileBytes = maxFileBytes
	cfg.Notification = repoconfig.NotificationPreference(notif)
	cfg.PauseOnDefault = pauseOnDefault
	cfg.Patterns = splitExcludes(excludeLine)
	return nil
}

// splitExcludes turns the wizard's comma-separated exclusion line into the
// same []string shape the --exclude flag produces.
func splitExcludes(line string) []string {
	var out []string
	for _, p := range strings.Split(line, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
