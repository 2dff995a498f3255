package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dshills/exthost/internal/config"
	"github.com/dshills/exthost/internal/manifest"
	"github.com/dshills/exthost/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	var start bool
	cmd := &cobra.Command{
		Use:   "check [manifest...]",
		Short: "Validate extension manifests",
		Long: `check loads and validates extension manifests, by default the ones named
in the configuration. With --start each extension is also started, its
capabilities are printed, and it is shut down again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			paths := args
			if len(paths) == 0 {
				paths = cfg.Extensions.Manifests
			}
			if len(paths) == 0 {
				return errors.New("no manifests given or configured")
			}
			return check(cmd.Context(), cmd.OutOrStdout(), cfg, paths, start)
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "start each extension and report its capabilities")
	return cmd
}

func check(ctx context.Context, out io.Writer, cfg *config.Config, paths []string, start bool) error {
	manifests, err := manifest.LoadAll(paths)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		fmt.Fprintf(out, "%s (%s): ok\n", m, m.Runtime)
	}
	if !start {
		return nil
	}

	// Start every extension eagerly so lazy ones are checked too.
	cfg.Workspace.Folders = nil
	h, err := newHost(cfg, zap.NewNop(), telemetry.NewMetrics(), &telemetry.Providers{})
	if err != nil {
		return err
	}
	defer h.Close(context.WithoutCancel(ctx))

	opts := manifest.RuntimeOptions{KillDelay: cfg.Session.KillDelay, LuaTimeout: cfg.Session.LuaCallTimeout}
	if err := h.AddManifests(ctx, manifests, opts); err != nil {
		return err
	}
	var errs []error
	for _, m := range manifests {
		if err := h.Activate(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.ID, err))
		}
	}
	for _, st := range h.Extensions() {
		if !st.Active {
			fmt.Fprintf(out, "%s: not started\n", st.ID)
			continue
		}
		families := make([]string, 0, len(st.Families))
		for _, f := range st.Families {
			families = append(families, f.String())
		}
		sort.Strings(families)
		server := "unnamed"
		if st.Server != nil {
			server = strings.TrimSpace(st.Server.Name + " " + st.Server.Version)
		}
		fmt.Fprintf(out, "%s: started %s, families: %s\n", st.ID, server, strings.Join(families, ", "))
	}
	return errors.Join(errs...)
}
