package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/dmitrijs2005/stuffhappens/internal/client/config"
)

// Status probes the backend and prints the result.
func (a *App) Status(ctx context.Context) error {
	a.checkOnline(ctx)
	h := a.health.Health()

	fmt.Fprintf(a.out, "Backend:      %s\n", a.config.Backend)
	fmt.Fprintf(a.out, "Connected:    %t\n", h.IsConnected)
	fmt.Fprintf(a.out, "Last checked: %s\n", h.LastChecked.Format(time.RFC3339))
	fmt.Fprintf(a.out, "Latency:      %s\n", h.Latency.Round(time.Millisecond))
	if h.Error != "" {
		fmt.Fprintf(a.out, "Error:        %s\n", h.Error)
	}
	return nil
}

// Metrics dumps the client's registry in the Prometheus text format.
func (a *App) Metrics(ctx context.Context) error {
	families, err := a.registry.Gather()
	if err != nil {
		return a.report(err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(a.out, mf); err != nil {
			return a.report(err)
		}
	}
	return nil
}

func (a *App) ShowConfig(ctx context.Context) error {
	info := a.config.DebugInfo()
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(a.out, "%-24s %s\n", k, info[k])
	}
	for _, w := range a.config.Validate().Warnings {
		fmt.Fprintln(a.out, "warning:", w)
	}
	return nil
}

// SwitchBackend replaces the backend the gateway talks to. The store is
// re-initialized against the new backend and the old one is closed.
func (a *App) SwitchBackend(ctx context.Context, kind string) error {
	if kind != config.BackendMemory && kind != config.BackendSupabase {
		return a.report(fmt.Errorf("unknown backend %q", kind))
	}

	next, err := newBackend(a.config, kind, a.storage, a.logger)
	if err != nil {
		return a.report(err)
	}

	prev := a.auth.ResetClient(next)
	a.config.Backend = kind
	a.health.Reset()
	a.store.InitializeAuth(ctx)

	if err := prev.Close(); err != nil {
		a.logger.Warn(ctx, "closing previous backend failed", "error", err)
	}

	fmt.Fprintf(a.out, "Switched to the %s backend.\n", kind)
	a.checkOnline(ctx)
	return nil
}
