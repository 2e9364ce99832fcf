package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/plugins"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6"))

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect installed plugins",
	}
	cmd.AddCommand(newPluginsListCommand())
	return cmd
}

func newPluginsListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the plugins found in the plugin directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				path, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				dir = cfg.Controller.PluginDir
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			registry := plugins.NewRegistry(dir, logger)
			if err := registry.Scan(); err != nil {
				return err
			}
			return printPlugins(cmd.OutOrStdout(), dir, registry.List())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "plugin directory (defaults to controller.plugin_dir)")
	return cmd
}

func printPlugins(w io.Writer, dir string, list []*plugins.Descriptor) error {
	if len(list) == 0 {
		_, err := fmt.Fprintf(w, "no plugins found in %s\n", dir)
		return err
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d plugins in %s", len(list), dir)))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tCAPABILITIES")
	for _, d := range list {
		caps := make([]string, len(d.Manifest.Capabilities))
		for i, c := range d.Manifest.Capabilities {
			caps[i] = string(c)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID(), d.Manifest.Name, d.Manifest.Version, strings.Join(caps, ","))
	}
	return tw.Flush()
}
