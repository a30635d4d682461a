package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/config"
)

// Version and BuildTime are set at link time:
//
//	-ldflags "-X github.com/derickschaefer/coinwatch/cmd.Version=v0.2.0
//	           -X github.com/derickschaefer/coinwatch/cmd.BuildTime=2026-02-16T12:00:00Z"
var (
	Version   = "v0.1.0"
	BuildTime = ""
)

// versionInfo describes the binary and the provider/cache setup it would run
// with from the current directory.
type versionInfo struct {
	Version   string `json:"version"`
	Runtime   string `json:"runtime"`
	BuildTime string `json:"build_time,omitempty"`

	Provider     string `json:"provider"`
	APIBaseURL   string `json:"api_base_url,omitempty"`
	APITier      string `json:"api_tier,omitempty"`
	CacheBackend string `json:"cache_backend,omitempty"`
	CacheTarget  string `json:"cache_target,omitempty"`
	ConfigFile   string `json:"config_file,omitempty"`
	ConfigError  string `json:"config_error,omitempty"`
}

const provider = "CoinGecko"

func buildVersionInfo() versionInfo {
	info := versionInfo{
		Version:   Version,
		Runtime:   fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		BuildTime: BuildTime,
		Provider:  provider,
	}

	// A broken config should not stop version from printing.
	cfg, err := config.Load(globalFlags.APIKey)
	if err != nil {
		info.ConfigError = err.Error()
		return info
	}
	info.APIBaseURL = cfg.BaseURL
	info.APITier = "public"
	if cfg.APIKey != "" {
		info.APITier = "demo key " + cfg.RedactedAPIKey()
	}
	info.CacheBackend = cfg.CacheBackend
	switch cfg.CacheBackend {
	case config.BackendBolt:
		info.CacheTarget = cfg.DBPath
	case config.BackendRedis:
		info.CacheTarget = fmt.Sprintf("%s db=%d", cfg.RedisAddr, cfg.RedisDB)
	}
	info.ConfigFile = cfg.ConfigPath
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the coinwatch version, provider and cache setup",
	Long: `Print the coinwatch version together with the provider endpoint and
cache backend the current directory's configuration resolves to.

Examples:
  coinwatch version
  coinwatch version --format json | jq .cache_backend`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildVersionInfo()
		out := cmd.OutOrStdout()

		switch globalFlags.Format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "jsonl":
			return json.NewEncoder(out).Encode(info)
		}

		printSimpleTable(out, []string{"KEY", "VALUE"}, func(add func(...string)) {
			add("version", info.Version)
			add("runtime", info.Runtime)
			if info.BuildTime != "" {
				add("built", info.BuildTime)
			}
			add("provider", info.Provider)
			if info.ConfigError != "" {
				add("config", "error: "+info.ConfigError)
				return
			}
			add("api", info.APIBaseURL)
			add("tier", info.APITier)
			add("cache", info.CacheBackend)
			if info.CacheTarget != "" {
				add("cache target", info.CacheTarget)
			}
			if info.ConfigFile != "" {
				add("config", info.ConfigFile)
			}
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
