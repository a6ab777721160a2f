package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/verdict/internal/core/config"
	"github.com/vietddude/verdict/internal/infra/llm/cooldown"
	redisclient "github.com/vietddude/verdict/internal/infra/redis"
)

var cooldownsCmd = &cobra.Command{
	Use:   "cooldowns",
	Short: "Show backends that are cooling down after a rate limit",
	RunE:  runCooldowns,
}

func init() {
	rootCmd.AddCommand(cooldownsCmd)
}

func openRegistry(ctx context.Context, cfg *config.AppConfig) (*cooldown.Registry, func(), error) {
	if cfg.Cooldowns.Backend != "redis" {
		return cooldown.NewRegistry(ctx, cooldown.NewFileStore(cfg.Cooldowns.Path)), func() {}, nil
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}
	store := cooldown.NewRedisStore(client, cfg.Cooldowns.RedisKey)
	return cooldown.NewRegistry(ctx, store), func() { _ = client.Close() }, nil
}

func runCooldowns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, closeFn, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	entries := registry.Snapshot()
	if len(entries) == 0 {
		fmt.Fprintln(out, okStyle.Render("No backends cooling down."))
		return nil
	}

	now := time.Now()
	fmt.Fprintln(out, cell("BACKEND", 40, titleStyle)+cell("AVAILABLE AT", 28, titleStyle)+cell("REMAINING", 12, titleStyle))
	for _, e := range entries {
		fmt.Fprintln(out,
			cell(e.Identity.Key(), 40, warnStyle)+
				cell(e.AvailableAt.Local().Format(time.RFC3339), 28, mutedStyle)+
				cell(e.Remaining(now).Round(time.Second).String(), 12, mutedStyle))
	}
	return nil
}
