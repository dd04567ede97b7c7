package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"starstack/internal/logging"
	ss "starstack/pkg/starstack"
)

type rootOptions struct {
	logLevel   string
	logFormat  string
	configPath string
}

func (o *rootOptions) logger() *slog.Logger {
	return logging.New(os.Stderr, o.logLevel, o.logFormat)
}

// params loads the tuning file when one is given, defaults otherwise.
func (o *rootOptions) params() (*ss.Params, error) {
	if o.configPath == "" {
		return ss.DefaultParams(), nil
	}
	return ss.LoadParams(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "starstack",
		Short: "Align and stack astronomical exposures",
		Long: `starstack registers exposures of the same star field onto the best frame using
triangle matching on detected stars, then combines them into one quality-weighted image.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text|json)")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "JSON tuning file")

	rootCmd.AddCommand(newStackCmd(opts))
	rootCmd.AddCommand(newDetectCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
