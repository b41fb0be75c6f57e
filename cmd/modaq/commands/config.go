package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modaq/uploader/internal/cli/output"
	"github.com/modaq/uploader/pkg/config"
)

var configShowOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage upload settings",
	Long: `Inspect and change the MODAQ upload settings.

The settings file is a flat JSON document. Service sections (logging, api,
metrics, uploads, cache) are edited by hand; the upload settings themselves
can be changed with 'modaq config set' or through the settings API.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current settings",
	Long: `Display the current MODAQ settings after defaults and environment
overrides are applied.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show effective settings as YAML
  modaq config show

  # Show as JSON
  modaq config show --output json

  # Show a specific settings file
  modaq config show --config /etc/modaq/settings.json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change an upload setting",
	Long: fmt.Sprintf(`Change one upload setting and persist it to the settings file.

Allowed keys: %s

Examples:
  # Point uploads at a different bucket
  modaq config set s3_bucket my-recordings

  # Switch AWS profiles
  modaq config set aws_profile field-station`, strings.Join(config.AllowedSettingKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, created, err := config.EnsureConfigFile(GetConfigFile())
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(os.Stderr, "Created settings file with defaults\n")
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configShowOutput, "output", "o", "yaml", "Output format (yaml|json)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(configShowOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, path, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	store := config.NewStore(cfg, path)
	_, changed, err := store.UpdateSettings(map[string]string{key: value})
	if err != nil {
		if err == config.ErrNoValidSettings {
			return fmt.Errorf("unknown setting %q\nAllowed keys: %s", key, strings.Join(config.AllowedSettingKeys(), ", "))
		}
		return err
	}

	fmt.Printf("Updated %s in %s\n", strings.Join(changed, ", "), path)
	return nil
}
