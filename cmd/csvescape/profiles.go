package main

import (
	"github.com/JonMunkholm/csvescape/internal/core"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

type profileEntry struct {
	Name     string             `json:"name" yaml:"name"`
	Default  bool               `json:"default,omitempty" yaml:"default,omitempty"`
	Settings core.ProfileConfig `json:"settings" yaml:"settings"`
}

// newProfilesCmd lists the built-in profiles and their defaults.
func newProfilesCmd(o *rootOpts) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "Show built-in output profiles",
		Long: `Profiles shows each built-in profile's defaults. An empty delimiter is
filled from detection, as is custom's "auto" line ending.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := core.ProfileNames()
			if len(args) == 1 {
				names = args
			}

			entries := make([]profileEntry, 0, len(names))
			for _, name := range names {
				cfg, ok := core.ProfileDefaults(name)
				if !ok {
					_, err := core.NewProfileBuilder(name).Build()
					return err
				}
				entries = append(entries, profileEntry{
					Name:     name,
					Default:  name == o.cfg.Detect.DefaultProfile,
					Settings: cfg,
				})
			}

			switch format {
			case "json":
				return writeJSON(o.out, entries)
			case "yaml":
				enc := yaml.NewEncoder(o.out)
				enc.SetIndent(2)
				if err := enc.Encode(entries); err != nil {
					return errors.Errorf("encoding YAML: %w", err)
				}
				return errors.WithStack(enc.Close())
			}
			return errors.Errorf("unknown format %q (expected yaml or json)", format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}
