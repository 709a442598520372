package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/JonMunkholm/csvescape/internal/history"
	"github.com/JonMunkholm/csvescape/internal/payload"
	"github.com/JonMunkholm/csvescape/internal/web"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

const sourceCLI = "cli"

// modeOpts are the flags shared by escape, sanitize and analyze.
type modeOpts struct {
	profile     string
	sets        []string
	overrides   string
	report      bool
	outPath     string
	history     bool
	emitRequest bool
}

// newModeCmd creates the subcommand for one engine mode.
func newModeCmd(o *rootOpts, mode core.Mode, short string) *cobra.Command {
	m := &modeOpts{}
	cmd := &cobra.Command{
		Use:   string(mode) + " [file]",
		Short: short,
		Example: `  csvescape ` + string(mode) + ` data.csv --profile db_rfc4180
  cat data.csv | csvescape ` + string(mode) + ` --set delimiter=';' --set max_rows=100
  csvescape ` + string(mode) + ` data.csv --overrides overrides.yaml --report -o out.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runMode(cmd.Context(), mode, m, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&m.profile, "profile", "p", "", "output profile: excel, db_rfc4180, ai_safety, custom (default from CSV_DEFAULT_PROFILE)")
	f.StringArrayVar(&m.sets, "set", nil, "override one profile field as key=value (repeatable; quote strings YAML treats specially, e.g. 'null_representation=\"NULL\"')")
	f.StringVar(&m.overrides, "overrides", "", "YAML file of profile overrides; --set values win")
	f.BoolVar(&m.report, "report", false, "print the issues, stats and meta as JSON to stderr")
	f.StringVarP(&m.outPath, "out", "o", "", "write output to this file instead of stdout")
	f.BoolVar(&m.history, "history", false, "print the run summary the service would record")
	f.BoolVar(&m.emitRequest, "emit-request", false, "print the equivalent HTTP request body instead of processing")
	return cmd
}

// runMode reads the input, runs the engine and writes every requested output.
func (o *rootOpts) runMode(ctx context.Context, mode core.Mode, m *modeOpts, args []string) error {
	text, err := o.readInput(args)
	if err != nil {
		return err
	}
	overrides, err := loadOverrides(m.overrides, m.sets)
	if err != nil {
		return err
	}

	profile := m.profile
	if profile == "" {
		profile = o.cfg.Detect.DefaultProfile
	}

	if m.emitRequest {
		return writeJSON(o.out, web.EscapeRequest{
			Mode:          string(mode),
			CSVB64:        payload.EncodeBase64Text(text),
			TargetProfile: profile,
			Overrides:     overrides,
			ResponseLevel: string(web.LevelStandard),
		})
	}

	run := history.NewRun(sourceCLI, string(mode), profile, len(text))
	start := time.Now()

	res, err := core.Process(core.Request{
		Mode:        mode,
		Text:        text,
		Profile:     profile,
		Overrides:   overrides,
		SampleLines: o.cfg.Detect.SampleLines,
	})
	if err != nil {
		run.Fail("CONFIGURATION_ERROR", time.Since(start))
		o.logger.Debug("run failed", "run_id", run.ID.String(), "error", err)
		return err
	}
	run.Complete(res, time.Since(start))

	if err := o.writeOutput(m.outPath, res.CSVText); err != nil {
		return err
	}

	printIssues(o.errOut, res.Issues)
	if m.report {
		if err := writeJSON(o.errOut, reportOf(res)); err != nil {
			return err
		}
	}
	if m.history {
		if err := o.printRun(ctx, run); err != nil {
			return err
		}
	}

	o.logger.Debug("processed",
		"mode", mode,
		"profile", res.Meta.Profile,
		"rows", res.Stats.Rows,
		"rows_truncated", res.Meta.RowsTruncated,
		"issues", len(res.Issues),
		"duration_ms", run.DurationMS,
	)
	return nil
}

// readInput reads the named file, or stdin when no file or "-" is given.
func (o *rootOpts) readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		text, err := payload.ReadText(o.in)
		if err != nil {
			return "", errors.Errorf("reading stdin: %w", err)
		}
		return text, nil
	}

	f, err := os.Open(args[0])
	if err != nil {
		return "", errors.Errorf("opening input: %w", err)
	}
	defer f.Close()

	text, err := payload.ReadText(f)
	if err != nil {
		return "", errors.Errorf("reading %s: %w", args[0], err)
	}
	return text, nil
}

func (o *rootOpts) writeOutput(path, text string) error {
	if path == "" {
		_, err := io.WriteString(o.out, text)
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errors.Errorf("writing output: %w", err)
	}
	return nil
}

// printRun records run in a throwaway store and prints it back, showing
// exactly what the service's history would hold.
func (o *rootOpts) printRun(ctx context.Context, run history.Run) error {
	store := history.NewMemoryStore(1)
	if err := store.Record(ctx, run); err != nil {
		return errors.Errorf("recording run: %w", err)
	}
	runs, err := store.Recent(ctx, 1)
	if err != nil {
		return errors.Errorf("reading run: %w", err)
	}
	return writeJSON(o.errOut, runs[0])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Errorf("encoding JSON: %w", err)
	}
	return nil
}
