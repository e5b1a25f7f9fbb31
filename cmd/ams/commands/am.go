package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/AMS/am"
	"github.com/teranos/AMS/errors"
)

// AmCmd groups the configuration subcommands
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Inspect AMS configuration",
	Long: `Inspect the merged AMS configuration.

Later sources win:
  /etc/ams/config.toml  <  ~/.ams/am.toml  <  ./am.toml (searched upward)  <  AMS_* env

Examples:
  ams am show --format json
  ams am get index.backend
  ams am validate
  ams am where`,
}

var outputFormat string

// encoders render the loaded config for `am show`
var encoders = map[string]func(*am.Config) ([]byte, error){
	"yaml": func(cfg *am.Config) ([]byte, error) { return yaml.Marshal(cfg) },
	"json": func(cfg *am.Config) ([]byte, error) { return json.MarshalIndent(cfg, "", "  ") },
}

func init() {
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			encode, ok := encoders[outputFormat]
			if !ok {
				return errors.NewInvalidRequestError("unsupported format %q (yaml or json)", outputFormat)
			}
			cfg, err := am.Load()
			if err != nil {
				return err
			}
			out, err := encode(cfg)
			if err != nil {
				return errors.Wrapf(err, "render config as %s", outputFormat)
			}
			fmt.Println(string(out))
			return nil
		},
	}
	show.Flags().StringVar(&outputFormat, "format", "yaml", "yaml or json")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one value by dotted key, e.g. pulse.workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := am.Get(args[0])
			if v == nil {
				return errors.NewNotFoundError("configuration key %s", args[0])
			}
			fmt.Println(v)
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := am.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				pterm.Error.Println(err)
				return err
			}
			pterm.Success.Println("Configuration is valid")
			return nil
		},
	}

	where := &cobra.Command{
		Use:   "where",
		Short: "List candidate config files and which were read",
		RunE: func(cmd *cobra.Command, args []string) error {
			read := make(map[string]bool)
			for _, p := range am.Sources() {
				read[p] = true
			}
			for _, p := range am.CandidatePaths() {
				if read[p] {
					pterm.Success.Println(p)
					continue
				}
				pterm.Info.Printf("%s (absent)\n", p)
			}
			return nil
		},
	}

	AmCmd.AddCommand(show, get, validate, where)
}

func itoa(n int) string { return strconv.Itoa(n) }
