package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/ocirepo"
)

var rootCmd = &cobra.Command{
	Use:          "ocirepo",
	Short:        "Store build artifacts in OCI registries",
	Long:         "Publish and fetch single files as single-layer images in any OCI distribution registry.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// flagKeys maps persistent flags to their config keys.
var flagKeys = map[string]string{
	"registry":                   "registry",
	"naming":                     "naming",
	"format":                     "format",
	"insecure":                   "insecure",
	"send-credentials-over-http": "send_credentials_over_http",
	"skip-tls-verify":            "skip_tls_verify",
	"connect-timeout":            "connect_timeout",
	"read-timeout":               "read_timeout",
	"username":                   "username",
	"password":                   "password",
	"proxy":                      "proxy",
	"log-level":                  "log_level",
	"concurrency":                "concurrency",
	"retries":                    "retries",
	"repository":                 "repositories",
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.PersistentFlags()
	f.String("config", "", "config file (default: ~/.config/ocirepo/config.yaml)")
	f.String("registry", "", "registry base URL, e.g. docker://registry.example.com/maven")
	f.String("naming", "default", "repository naming strategy: default, sha256 or none")
	f.String("format", "docker", "manifest format: docker (V2.2) or oci")
	f.Bool("insecure", true, "allow http:// registries")
	f.Bool("send-credentials-over-http", true, "send credentials to http:// registries")
	f.Bool("skip-tls-verify", false, "skip TLS certificate verification")
	f.Duration("connect-timeout", 20*time.Second, "connect timeout")
	f.Duration("read-timeout", 60*time.Second, "read timeout")
	f.String("username", "", "registry username (default: docker keychain)")
	f.String("password", "", "registry password")
	f.String("proxy", "", "proxy URL (default: HTTPS_PROXY/HTTP_PROXY)")
	f.String("log-level", "warn", "log level: debug, info, warn or error")
	f.Int("concurrency", 4, "parallel transfers")
	f.Int("retries", 3, "attempts per registry request")
	f.StringSlice("repository", nil, "explicit repository for an artifact, as <artifact-path>=<repository>")

	for flag, key := range flagKeys {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("OCIREPO")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ocirepo")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "ocirepo")
	}
	return ".ocirepo"
}

func newLogger() (*log.Logger, error) {
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Prefix:          "ocirepo",
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	}), nil
}

// openRepository builds an adapter from flags, environment and config file.
func openRepository(logger *log.Logger) (*ocirepo.Adapter, error) {
	registry := viper.GetString("registry")
	if registry == "" {
		return nil, errors.New("no registry configured (use --registry or OCIREPO_REGISTRY)")
	}

	strategy, err := ocirepo.ParseNamingStrategy(viper.GetString("naming"))
	if err != nil {
		return nil, err
	}
	format, err := ocirepo.ParseManifestFormat(viper.GetString("format"))
	if err != nil {
		return nil, err
	}

	opts := []ocirepo.Option{
		ocirepo.WithNamingStrategy(strategy),
		ocirepo.WithManifestFormat(format),
		ocirepo.WithAllowInsecureRegistries(viper.GetBool("insecure")),
		ocirepo.WithSendCredentialsOverHTTP(viper.GetBool("send_credentials_over_http")),
		ocirepo.WithSkipTLSVerify(viper.GetBool("skip_tls_verify")),
		ocirepo.WithConnectTimeout(viper.GetDuration("connect_timeout")),
		ocirepo.WithReadTimeout(viper.GetDuration("read_timeout")),
		ocirepo.WithRetries(viper.GetInt("retries")),
		ocirepo.WithLogger(logger),
	}
	if user := viper.GetString("username"); user != "" {
		opts = append(opts, ocirepo.WithCredentials(user, viper.GetString("password")))
	}
	if proxy := viper.GetString("proxy"); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		opts = append(opts, ocirepo.WithProxy(u))
	}
	for _, pair := range viper.GetStringSlice("repositories") {
		path, repo, err := splitPair(pair, "repository")
		if err != nil {
			return nil, err
		}
		opts = append(opts, ocirepo.WithRepositoryName(path, repo))
	}

	return ocirepo.Open(registry, opts...)
}

// splitPair parses "<artifact-path>=<value>".
func splitPair(arg, value string) (string, string, error) {
	path, v, ok := strings.Cut(arg, "=")
	if !ok || path == "" || v == "" {
		return "", "", fmt.Errorf("expected <artifact-path>=<%s>, got %q", value, arg)
	}
	return path, v, nil
}
