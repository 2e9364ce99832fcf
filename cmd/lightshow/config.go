package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightshow/lightshow/internal/auth"
	"github.com/lightshow/lightshow/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(newConfigDumpCommand())
	cmd.AddCommand(newConfigCheckCommand())
	cmd.AddCommand(newHashPasswordCommand())
	return cmd
}

func newConfigDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print an example configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.DumpExampleConfig(cmd.OutOrStdout())
		},
	}
}

func newConfigCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d points, plugins in %s)\n", path, cfg.Lights.Points, cfg.Controller.PluginDir)
			return nil
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for auth.admin_password_hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
