package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ligscreen/internal/app"
	"ligscreen/internal/catalog"
	"ligscreen/internal/config"
	"ligscreen/internal/engine"
	"ligscreen/internal/logging"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitInput   = 2
	exitPartial = 3
)

// errPartial is returned under --strict when a ligand failed or had no usable result.
var errPartial = errors.New("screening finished with failed or missing ligands")

// inputError marks bad user input: flags, config or top-k.
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	return &inputError{err: err}
}

func exitCode(err error) int {
	var ie *inputError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errPartial):
		return exitPartial
	case errors.As(err, &ie),
		errors.Is(err, catalog.ErrMalformedCatalog),
		errors.Is(err, engine.ErrInvalidTopK):
		return exitInput
	default:
		return exitRuntime
	}
}

type cli struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	// interactive enables the progress bar; it is false when stderr is not a terminal.
	interactive bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{v: viper.New(), stdout: os.Stdout, stderr: os.Stderr, interactive: stderrIsTerminal()}
	err := c.rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ligscreen",
		Short: "High-throughput ligand docking screen",
		Long: `ligscreen docks every ligand of a catalog against one target structure,
collects the per-ligand affinity predictions into a combined table and ranks
them by a weighted, min-max normalized score of affinity and lDDT.

Configuration comes from ligscreen.yml (or --config, YAML or TOML), overridden by
flags and LIGSCREEN_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(c.v.GetString("log-level"))
			if err != nil {
				return invalidInput(err)
			}
			format := c.v.GetString("log-format")
			if format != "text" && format != "json" {
				return invalidInput(fmt.Errorf("unknown log format %q", format))
			}
			logging.Init(level, format, c.stderr)
			return nil
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInput(err)
	})
	c.initConfig()
	c.addPersistentFlags(root)
	root.AddCommand(c.screenCmd())
	root.AddCommand(c.rankCmd())
	root.AddCommand(c.catalogCmd())
	root.AddCommand(c.configCmd())
	root.AddCommand(c.serveCmd())
	return root
}

func (c *cli) initConfig() {
	c.v.SetEnvPrefix("LIGSCREEN")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
}

func (c *cli) addPersistentFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default ./"+config.FileName+")")
	flags.String("target", "", "target structure (overrides config target)")
	flags.String("catalog", "", "ligand catalog CSV (overrides config catalog)")
	flags.String("output-dir", "", "output directory (overrides config output_dir)")
	flags.String("device", "", "device passed to the docking tool (overrides config tool.device)")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	for _, name := range []string{"config", "target", "catalog", "output-dir", "device", "json", "log-level", "log-format"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}
}

// loadConfig resolves the config file and applies flag and env overrides.
// The result is validated only when validate is set.
func (c *cli) loadConfig(validate bool) (config.Config, error) {
	cfg, err := app.ResolveConfig(c.v.GetString("config"), ".", app.Overrides{
		Target:    c.v.GetString("target"),
		Catalog:   c.v.GetString("catalog"),
		OutputDir: c.v.GetString("output-dir"),
		Device:    c.v.GetString("device"),
	})
	if err != nil {
		return config.Config{}, invalidInput(err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, invalidInput(err)
		}
	}
	return cfg, nil
}
