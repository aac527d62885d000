package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/health"
	"github.com/kongwutw/devfront/internal/pipeline"
)

const probeTimeout = 5 * time.Second

func newCheckCmd(flags *globalFlags) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags.ConfigFile, nil)
			if err != nil {
				return err
			}
			if _, err := pipeline.New(newSource(cfg), cfg.Plugins); err != nil {
				return err
			}
			var results []health.Result
			if probe {
				ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
				defer cancel()
				results = health.NewChecker(&http.Client{Timeout: probeTimeout}, nil).CheckAll(ctx, cfg.Proxy)
			}
			return printRoutes(cmd.OutOrStdout(), cfg, results)
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "probe each proxy upstream and report whether it answers")
	return cmd
}

// printRoutes writes the resolved routing table. When results is non-nil it
// holds one probe result per proxy rule.
func printRoutes(w io.Writer, cfg *config.Resolved, results []health.Result) error {
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	fmt.Fprintf(w, "listen   %s://%s%s\n", scheme, cfg.Server.Addr(), cfg.Server.BasePath)
	fmt.Fprintf(w, "root     %s\n", cfg.Root)
	if cfg.PublicDir != "" {
		fmt.Fprintf(w, "public   %s\n", cfg.PublicDir)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(cfg.Proxy) > 0 {
		header := "\nPREFIX\tTARGET\tWS\tCHANGE ORIGIN\tSTRIP PREFIX"
		if results != nil {
			header += "\tUPSTREAM"
		}
		fmt.Fprintln(tw, header)
		for i, r := range cfg.Proxy {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t", r.MatchPrefix, r.Upstream, r.AllowWebSocketUpgrade, r.RewriteOrigin, r.StripPrefix)
			if results != nil {
				fmt.Fprintf(tw, "\t%s", describeProbe(results[i]))
			}
			fmt.Fprintln(tw)
		}
	}
	if len(cfg.Aliases) > 0 {
		fmt.Fprintln(tw, "\nALIAS\tPATH")
		for _, a := range cfg.Aliases {
			fmt.Fprintf(tw, "/%s\t%s\n", a.Token, a.Path)
		}
	}
	if len(cfg.Plugins) > 0 {
		fmt.Fprintln(tw, "\nPLUGIN")
		for _, p := range cfg.Plugins {
			fmt.Fprintf(tw, "%s\n", p.Name)
		}
	}
	return tw.Flush()
}

func describeProbe(r health.Result) string {
	switch {
	case r.HTTPCode != 0:
		return fmt.Sprintf("%s (%d, %dms)", r.Status, r.HTTPCode, r.ResponseTime.Milliseconds())
	case r.Snippet != "":
		return fmt.Sprintf("%s: %s", r.Status, r.Snippet)
	}
	return string(r.Status)
}

// newSource reads from the project root, public dir and alias targets. The
// config file and TLS material are never served.
func newSource(cfg *config.Resolved) *pipeline.DirSource {
	source := pipeline.NewDirSource(cfg.Root, cfg.PublicDir, aliasDirs(cfg)...)
	source.Deny(cfg.ConfigFile)
	if tls := cfg.Server.TLS; tls != nil {
		source.Deny(tls.CertFile, tls.KeyFile)
	}
	return source
}

func aliasDirs(cfg *config.Resolved) []string {
	dirs := make([]string, 0, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		dirs = append(dirs, a.Path)
	}
	return dirs
}
