package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"ligscreen/internal/config"
	"ligscreen/internal/dispatch"
	"ligscreen/internal/domain"
	"ligscreen/internal/engine"
	"ligscreen/internal/logging"
	"ligscreen/internal/report"
	"ligscreen/internal/server"
)

func (c *cli) newEngine(cfg config.Config, d dispatch.Dispatcher) engine.Engine {
	e := engine.New(cfg, d)
	if c.interactive && !c.v.GetBool("json") {
		e.Progress = newProgressBar(c.stderr)
	}
	return e
}

func (c *cli) screenCmd() *cobra.Command {
	var topK int
	var strict bool
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Dock every catalog ligand, then collect and rank the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			d := dispatch.NewExecDispatcher(cfg, dispatch.ExecRunner{}, logging.New("dispatch"))
			summary, err := c.newEngine(cfg, d).Screen(cmd.Context(), engine.ScreenOptions{TopK: topK})
			if err != nil {
				return err
			}
			if err := c.printSummary(summary); err != nil {
				return err
			}
			return checkStrict(strict, summary)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of top ligands to keep (overrides config scoring.top_k)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with status 3 when any ligand failed or had no result file")
	return cmd
}

func (c *cli) rankCmd() *cobra.Command {
	var topK int
	var strict bool
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Re-collect and re-rank existing result files without docking",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			summary, err := c.newEngine(cfg, nil).Rerank(cmd.Context(), engine.ScreenOptions{TopK: topK})
			if err != nil {
				return err
			}
			if err := c.printSummary(summary); err != nil {
				return err
			}
			return checkStrict(strict, summary)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of top ligands to keep (overrides config scoring.top_k)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with status 3 when any ligand had no usable result file")
	return cmd
}

func checkStrict(strict bool, summary domain.RunSummary) error {
	if strict && summary.Partial() {
		return errPartial
	}
	return nil
}

func (c *cli) catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Inspect the ligand catalog"}
	cat.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the parsed catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(false)
			if err != nil {
				return err
			}
			if cfg.Catalog == "" {
				return invalidInput(errors.New("catalog is required (--catalog or config catalog)"))
			}
			ligands, err := engine.New(cfg, nil).Ligands()
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(ligands)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(c.stdout)
			tw.AppendHeader(table.Row{"#", "Name", "Descriptor"})
			for i, l := range ligands {
				tw.AppendRow(table.Row{i + 1, l.Name, l.Descriptor})
			}
			tw.AppendFooter(table.Row{"", "Total", len(ligands)})
			tw.Render()
			return nil
		},
	})
	return cat
}

func (c *cli) configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage ligscreen configuration"}
	cfgCmd.AddCommand(c.configInitCmd())
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(false)
			if err != nil {
				return err
			}
			if c.v.GetBool("json") {
				return c.printJSON(cfg)
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadConfig(true); err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, "config valid")
			return nil
		},
	})
	return cfgCmd
}

func (c *cli) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.v.GetString("config")
			if path == "" {
				path = config.Path(".")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return invalidInput(fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve screening results over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			_ = c.v.BindEnv("jwt-secret", "LIGSCREEN_JWT_SECRET")
			authCfg := server.AuthConfig{JWTSecret: c.v.GetString("jwt-secret"), Logger: logging.New("server")}
			if authCfg.JWTSecret == "" {
				return invalidInput(errors.New("LIGSCREEN_JWT_SECRET is required for bearer auth"))
			}
			handler, err := server.New(server.Config{Engine: engine.New(cfg, nil), BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), ln, handler, func(a net.Addr) {
				fmt.Fprintf(c.stdout, "Serving ligscreen API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", a, basePath, basePath)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// serve runs handler on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, ready func(net.Addr)) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if ready != nil {
		ready(ln.Addr())
	}
	return g.Wait()
}

func (c *cli) printSummary(summary domain.RunSummary) error {
	if c.v.GetBool("json") {
		return c.printJSON(summary)
	}
	if len(summary.Dispatched) > 0 {
		report.RenderOutcomes(c.stdout, "Docking", summary.Dispatched)
	}
	report.RenderOutcomes(c.stdout, "Extraction", summary.Collected)
	if summary.Empty {
		fmt.Fprintln(c.stdout, "No results files found.")
		return nil
	}
	fmt.Fprintf(c.stdout, "Combined docking results saved to %s\n", summary.CombinedPath)
	report.RenderTop(c.stdout, summary.Top)
	fmt.Fprintf(c.stdout, "Top %d ligands saved to %s\n", summary.TopK, summary.TopPath)
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
