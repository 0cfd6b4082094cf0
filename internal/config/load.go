package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for secret file/prompt resolution
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Flags ---
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// --- Config file ---
	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("tin-report")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/tin-report/")
		v.AddConfigPath("$HOME/.tin-report")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: TINREPORT_WAREHOUSE_DSN, TINREPORT_SERVER_PORT, ...
	v.SetEnvPrefix("TINREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	// --- DSN from file (explicit override) ---
	if v.GetString("warehouse.dsn") == "" && v.GetString("warehouse.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("warehouse.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read warehouse DSN file: %w", err)
		}
		v.Set("warehouse.dsn", dsn)
	}

	// --- Secure password input (explicit override) ---
	if v.GetString("warehouse.password") == "" && v.GetString("warehouse.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("warehouse.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read warehouse password file: %w", err)
		}
		v.Set("warehouse.password", pwd)
	}
	if v.GetString("warehouse.password") == "" && v.GetBool("warehouse.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("warehouse.password", pwd)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := pflag.CommandLine.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		// Warehouse connection flags
		pflag.String("warehouse.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
		pflag.String("warehouse.dsn_file", "", "Path to file containing warehouse DSN (use @- for stdin)")

		// Warehouse discrete connection flags (used when DSN is not set)
		pflag.String("warehouse.host", "", "Warehouse host")
		pflag.Int("warehouse.port", 0, "Warehouse port")
		pflag.String("warehouse.user", "", "Warehouse user")
		pflag.String("warehouse.password", "", "Warehouse password")
		pflag.String("warehouse.password_file", "", "Path to file containing warehouse password (use @- for stdin)")
		pflag.Bool("warehouse.password_prompt", false, "Prompt for warehouse password securely")
		pflag.String("warehouse.database", "", "Warehouse database name")
		pflag.String("warehouse.table", "", "Warehouse table holding report rows")

		// Warehouse TLS flags
		pflag.String("warehouse.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
		pflag.String("warehouse.tls.ca_file", "", "Path to CA certificate for server verification")
		pflag.String("warehouse.tls.ca_file_env", "", "Env var containing CA certificate path")
		pflag.String("warehouse.tls.cert_file", "", "Path to client certificate for mTLS")
		pflag.String("warehouse.tls.cert_file_env", "", "Env var containing client certificate path")
		pflag.String("warehouse.tls.key_file", "", "Path to client private key for mTLS")
		pflag.String("warehouse.tls.key_file_env", "", "Env var containing client key path")
		pflag.String("warehouse.tls.server_name", "", "Override TLS server name for verification")

		// Warehouse pool flags
		pflag.Int("warehouse.pool.max_open", 0, "Maximum open warehouse connections")
		pflag.Int("warehouse.pool.max_idle", 0, "Maximum idle connections in pool")
		pflag.Duration("warehouse.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
		pflag.Duration("warehouse.connection_timeout", 0, "Max time to wait for warehouse on startup (0 = fail immediately)")
		pflag.Duration("warehouse.connection_retry_interval", 0, "Initial interval between connection retries")

		// Validation flags
		pflag.Bool("validation.tin_digits_only", false, "Require TINs to be all digits")

		// Export flags
		pflag.String("export.sheet_name", "", "Worksheet name in generated spreadsheets")

		// Server flags
		pflag.Int("server.port", 0, "HTTP server port")
		pflag.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
		pflag.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
		pflag.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
		pflag.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
		pflag.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Duration("server.health_check_timeout", 0, "Health check timeout")

		// TLS flags
		pflag.String("server.tls_mode", "", "TLS mode: off, file (default: off)")
		pflag.String("server.tls_cert_file", "", "Path to TLS certificate file (for file mode)")
		pflag.String("server.tls_key_file", "", "Path to TLS private key file (for file mode)")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")
		pflag.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")

		// Logging flags (under observability)
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")

		// Global OTLP flags
		pflag.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
		pflag.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
		pflag.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
		pflag.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
		pflag.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
		pflag.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
		pflag.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient errors")
		pflag.Int("observability.otlp.retry_max_attempts", 0, "Maximum retry attempts")

		// Signal-specific OTLP flags (traces)
		pflag.String("observability.traces.endpoint", "", "OTLP endpoint for traces only")
		pflag.String("observability.traces.protocol", "", "OTLP protocol for traces (grpc, http/protobuf)")
		pflag.Bool("observability.traces.insecure", false, "Use insecure connection for traces")
		pflag.Duration("observability.traces.timeout", 0, "Timeout for trace exports")

		// Signal-specific OTLP flags (logs)
		pflag.String("observability.logs.endpoint", "", "OTLP endpoint for logs only")
		pflag.String("observability.logs.protocol", "", "OTLP protocol for logs (grpc, http/protobuf)")
		pflag.Bool("observability.logs.insecure", false, "Use insecure connection for logs")
		pflag.Duration("observability.logs.timeout", 0, "Timeout for log exports")

		// Config file flag
		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	// Warehouse connection defaults
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.dsn_file", "")

	// Warehouse discrete connection defaults
	v.SetDefault("warehouse.host", "localhost")
	v.SetDefault("warehouse.port", 3306)
	v.SetDefault("warehouse.user", "tin_report")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.password_file", "")
	v.SetDefault("warehouse.password_prompt", false)
	v.SetDefault("warehouse.database", "reporting")
	v.SetDefault("warehouse.table", "records")

	// Warehouse TLS defaults
	v.SetDefault("warehouse.tls.mode", "")
	v.SetDefault("warehouse.tls.ca_file", "")
	v.SetDefault("warehouse.tls.ca_file_env", "")
	v.SetDefault("warehouse.tls.cert_file", "")
	v.SetDefault("warehouse.tls.cert_file_env", "")
	v.SetDefault("warehouse.tls.key_file", "")
	v.SetDefault("warehouse.tls.key_file_env", "")
	v.SetDefault("warehouse.tls.server_name", "")

	// Warehouse pool defaults
	v.SetDefault("warehouse.pool.max_open", 25)
	v.SetDefault("warehouse.pool.max_idle", 5)
	v.SetDefault("warehouse.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("warehouse.connection_timeout", 60*time.Second)
	v.SetDefault("warehouse.connection_retry_interval", 2*time.Second)

	// Validation defaults
	v.SetDefault("validation.tin_digits_only", true)

	// Export defaults
	v.SetDefault("export.sheet_name", "Report")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type"})
	v.SetDefault("server.cors_expose_headers", []string{"Content-Disposition"})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	// TLS defaults
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Observability defaults
	v.SetDefault("observability.service_name", "tin-report")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)

	// Logging defaults (under observability)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)

	// Global OTLP defaults
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter warehouse password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"warehouse.dsn_file",
		"warehouse.password_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}

	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
