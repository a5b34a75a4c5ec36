package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/moepig/jmx-conf-gen/settings"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change stored connection preferences",
	Long: `Show or change stored connection preferences.

Preferences live in the settings store selected by the configuration
(memory, file or redis) and take precedence over the configuration file.

Keys:
  update-rate    Auto refresh interval in milliseconds
  auto-refresh   Whether tree views refresh automatically (true/false)
  max-depth      Jolokia maxDepth request option
  max-collection-size
                 Jolokia maxCollectionSize request option

Examples:
  jmx-conf-gen prefs --config config.yaml
  jmx-conf-gen prefs set update-rate 2000 --config config.yaml
  jmx-conf-gen prefs reset --config config.yaml
`,
	Args: cobra.NoArgs,
	RunE: runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Store a preference",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"update-rate", "auto-refresh", "max-depth", "max-collection-size"},
	RunE:      runPrefsSet,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every stored preference",
	Args:  cobra.NoArgs,
	RunE:  runPrefsReset,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsResetCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rate, err := a.prefs.LoadUpdateRate(ctx)
	if err != nil {
		return err
	}
	auto, err := a.prefs.LoadAutoRefresh(ctx)
	if err != nil {
		return err
	}
	opts, err := a.prefs.LoadJolokiaStoredOptions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Preferences"))
	fmt.Fprintf(out, "  %s %d\n", folderStyle.Render("update-rate"), rate)
	fmt.Fprintf(out, "  %s %t\n", folderStyle.Render("auto-refresh"), auto)
	fmt.Fprintf(out, "  %s %d\n", folderStyle.Render("max-depth"), opts.MaxDepth)
	fmt.Fprintf(out, "  %s %d\n", folderStyle.Render("max-collection-size"), opts.MaxCollectionSize)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	key, value := args[0], args[1]
	switch key {
	case "update-rate":
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return fmt.Errorf("update-rate must be a positive number of milliseconds: %s", value)
		}
		return a.prefs.SaveUpdateRate(ctx, rate)
	case "auto-refresh":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto-refresh must be true or false: %s", value)
		}
		return a.prefs.SaveAutoRefresh(ctx, enabled)
	case "max-depth", "max-collection-size":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number: %s", key, value)
		}
		opts, err := a.prefs.LoadJolokiaStoredOptions(ctx)
		if err != nil {
			return err
		}
		if key == "max-depth" {
			opts.MaxDepth = n
		} else {
			opts.MaxCollectionSize = n
		}
		return a.prefs.SaveJolokiaStoredOptions(ctx, opts)
	default:
		return fmt.Errorf("unknown preference: %s (valid: update-rate, auto-refresh, max-depth, max-collection-size)", key)
	}
}

func runPrefsReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, key := range []string{settings.KeyUpdateRate, settings.KeyAutoRefresh, settings.KeyJolokiaOptions} {
		if err := a.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}
