package main

import (
	"io"
	"log/slog"

	"github.com/JonMunkholm/csvescape/internal/config"
	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/JonMunkholm/csvescape/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

// rootOpts carries streams, shared flags and what setup derives from them.
type rootOpts struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	logLevel  string
	logFormat string
	noColor   bool

	cfg    *config.Config
	logger *slog.Logger
}

// newRootCmd builds the command tree. Streams are injected so tests can
// drive the CLI without touching the process's stdio.
func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	o := &rootOpts{in: in, out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:   "csvescape",
		Short: "Escape, sanitize and analyze delimiter-separated text",
		Long: `csvescape re-renders CSV for a target consumer.

  escape    re-quote and re-terminate every cell under an output profile
  sanitize  pad or merge rows to a uniform width, then escape
  analyze   report structural issues; the text only has its line endings normalized

Input is read from a file argument or stdin. Output goes to stdout or --out.
Issues are printed to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	pf.BoolVar(&o.noColor, "no-color", false, "disable colored issue output")

	cmd.AddCommand(
		newModeCmd(o, core.ModeEscape, "Re-render CSV under an output profile"),
		newModeCmd(o, core.ModeSanitize, "Repair ragged rows, then re-render"),
		newModeCmd(o, core.ModeAnalyze, "Report structural issues without rewriting cells"),
		newProfilesCmd(o),
	)

	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

// setup loads configuration and the stderr logger.
func (o *rootOpts) setup() error {
	if o.noColor {
		color.NoColor = true
	}
	o.logger = logging.New(o.errOut, o.logLevel, o.logFormat)

	cfg, err := config.Load()
	if err != nil {
		return errors.Errorf("loading configuration: %w", err)
	}
	o.cfg = cfg
	return nil
}
