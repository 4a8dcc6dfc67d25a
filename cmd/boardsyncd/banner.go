package main

import (
	"fmt"

	"github.com/agilecore/boardsyncd/internal/config"
	"github.com/agilecore/boardsyncd/version"
)

// printStartupBanner prints the operator-facing startup message: version,
// listen address, auth mode, and the knobs that most often need tuning.
func printStartupBanner(cfg *config.Config) {
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔══════════════════════════════════════════════╗\n")
	fmt.Printf("   ║   boardsyncd — realtime board sync server     ║\n")
	fmt.Printf("   ╚══════════════════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ Startup ──────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:       %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Listen:        %s\n", green, reset, cfg.ListenAddr)
	fmt.Printf("%s│%s Auth mode:     %s\n", green, reset, cfg.AuthMode)
	fmt.Printf("%s│%s Storage root:  %s\n", green, reset, cfg.StorageRoot)
	fmt.Printf("%s│%s Max conns:     %d global / %d per tenant\n", green, reset, cfg.GlobalMaxConnections, cfg.PerTenantMaxConnections)
	if cfg.AllowAllOrigins {
		fmt.Printf("%s│%s %sOrigin check:   disabled (allow_all_origins=true)%s\n", green, reset, yellow, reset)
	}
	fmt.Printf("%s└────────────────────────────────────────────────┘%s\n\n", green, reset)

	fmt.Printf("%s%sPress Ctrl+C to stop (twice to force)%s\n\n", yellow, bold, reset)
}
