package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/internal/config"
	"eod-collector/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	cc := cfg.Collector
	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Dataset: %s", cfg.OutputPath()),
		fmt.Sprintf("Symbol mapping: %s", cfg.MappingPath()),
		fmt.Sprintf("Journal: %s", orDisabled(cfg.JournalPath())),
		fmt.Sprintf("Collector (days/batch/delay): %d / %d / %s", cc.Days, cc.BatchSize, cc.SymbolDelay),
		fmt.Sprintf("Symbols: %s", symbolScope(cc)),
		fmt.Sprintf("Daily update at: %s UTC", cfg.Schedule.DailyAt),
		fmt.Sprintf("Postgres mirror: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis mapping mirror: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		sectionLine("Market config", cfg.Market),
	}
	if m := cfg.Market.Value; m != nil {
		lines = append(lines, fmt.Sprintf("Providers (exchange/reference): %s / %s", m.Exchange, m.Reference))
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func symbolScope(cc config.CollectorConf) string {
	var parts []string
	switch {
	case len(cc.Symbols) > 0:
		parts = append(parts, fmt.Sprintf("%d listed", len(cc.Symbols)))
	case len(cc.QuoteAssets) > 0:
		parts = append(parts, "quotes "+strings.Join(cc.QuoteAssets, ","))
	default:
		parts = append(parts, "all trading pairs")
	}
	if cc.MaxSymbols > 0 {
		parts = append(parts, fmt.Sprintf("max %d", cc.MaxSymbols))
	}
	return strings.Join(parts, ", ")
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func orDisabled(path string) string {
	if path == "" {
		return "disabled"
	}
	return path
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Loaded():
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
