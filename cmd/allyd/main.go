// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command allyd serves the REST processor chains configured for it.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/z5labs/ally"
	"github.com/z5labs/ally/config"
	"github.com/z5labs/ally/internal/service"

	"github.com/spf13/cobra"
)

// EnvPrefix prefixes the environment variables overriding the config.
const EnvPrefix = "ALLY_"

func main() {
	err := rootCmd().ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "allyd",
		Short:        "Serve REST requests through processor chains",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ally.Run(cmd.Context(), ally.RecoverBuilder(builder()), sources(path)...)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "yaml or json config file, rendered as a text/template")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), service.Version)
		},
	}
}

func builder() ally.AppBuilder[service.Config] {
	b := ally.OTel(service.Builder(os.Stderr))
	return ally.AppBuilderFunc[service.Config](func(ctx context.Context, cfg service.Config) (ally.App, error) {
		app, err := b.Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app = ally.WithSignalNotifications(app, os.Interrupt, syscall.SIGTERM)
		return ally.Recover(app), nil
	})
}

func sources(path string) []config.Source {
	srcs := []config.Source{config.Map(service.DefaultConfig())}
	if path != "" {
		file := config.FromFile(os.DirFS(filepath.Dir(path)), filepath.Base(path), config.Templated())
		srcs = append(srcs, file)
	}
	return append(srcs, config.FromEnv(EnvPrefix))
}
