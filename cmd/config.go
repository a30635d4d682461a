package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/coinwatch/internal/config"
	"github.com/derickschaefer/coinwatch/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage coinwatch configuration",
	Long: `Read and write coinwatch configuration stored in config.json.

Values resolve in this order, later layers winning: built-in defaults,
config.json, .env, process environment, command-line flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  The public API works without a key. To raise the rate limit,")
		fmt.Fprintln(out, "  get a free demo key at https://www.coingecko.com/en/api and set api_key.")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.APIKey)
		if err != nil {
			return err
		}

		apiKey := cfg.RedactedAPIKey()
		if configGetShowSecrets {
			apiKey = cfg.APIKey
		}
		if apiKey == "" {
			apiKey = "(not set)"
		}
		redisPassword := ""
		if cfg.RedisPassword != "" {
			redisPassword = "****"
			if configGetShowSecrets {
				redisPassword = cfg.RedisPassword
			}
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		envSrc := "(not found)"
		if cfg.EnvPath != "" {
			envSrc = cfg.EnvPath
		}

		rows := [][]string{
			{"api_key", apiKey},
			{"default_format", cfg.Format},
			{"timeout", cfg.Timeout.String()},
			{"rate", strconv.FormatFloat(cfg.Rate, 'f', -1, 64)},
			{"limit", strconv.Itoa(cfg.Limit)},
			{"base_url", cfg.BaseURL},
			{"cache_backend", cfg.CacheBackend},
			{"db_path", cfg.DBPath},
			{"redis_addr", cfg.RedisAddr},
			{"redis_password", redisPassword},
			{"redis_db", strconv.Itoa(cfg.RedisDB)},
			{"redis_ttl", cfg.RedisTTL.String()},
			{"listen_addr", cfg.ListenAddr},
			{"config_file", src},
			{"env_file", envSrc},
		}

		switch resolveFormat(cfg.Format) {
		case render.FormatJSON:
			obj := make(map[string]string, len(rows))
			for _, r := range rows {
				obj[r[0]] = r[1]
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(obj)
		default:
			printSimpleTable(cmd.OutOrStdout(), []string{"KEY", "VALUE"}, func(add func(...string)) {
				for _, r := range rows {
					add(r...)
				}
			})
			return nil
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Long: "Set one key in config.json, creating the file from the template if needed.\n\nValid keys: " +
		strings.Join(config.Keys, ", "),
	Example: `  coinwatch config set limit 50
  coinwatch config set cache_backend redis
  coinwatch config set redis_addr 10.0.0.5:6379`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		path := config.DefaultConfigFile

		f := config.Template()
		existing, err := config.ReadFile(path)
		switch {
		case err == nil:
			f = *existing
		case !os.IsNotExist(err):
			return err
		}

		if err := config.Set(&f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show API key and redis password in plain text")
}
