package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bestpick",
		Short: "Rank products by aggregated review sentiment",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(searchCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(topCmd())
	root.AddCommand(tiersCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func searchCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search every channel and list hits by engagement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), strings.Join(args, " "), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func scoreCmd() *cobra.Command {
	var (
		file  string
		query string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a JSON array of classified source items offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(file, query)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with source items (- for stdin)")
	cmd.Flags().StringVar(&query, "query", "", "query label for the payload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func topCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "top <query>",
		Short: "Rank products for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTop(cmd.Context(), strings.Join(args, " "), jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "max picks to show (default: from config)")
	return cmd
}

func tiersCmd() *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Show reviewer tiers or look up a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTiers(domain)
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain to look up")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with watched-query scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
