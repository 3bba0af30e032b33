package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. PGGQL_DATABASE_HOST.
const EnvPrefix = "PGGQL"

// Non-config flags defined by callers on the same FlagSet.
var ignoredFlags = map[string]bool{
	"config":       true,
	"version":      true,
	"print-schema": true,
	"query":        true,
	"query-file":   true,
	"variables":    true,
	"operation":    true,
}

// Stdin and the terminal used by the password sources.
var (
	stdin          io.Reader = os.Stdin
	promptPassword           = promptTerminalPassword
)

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set), used for password files and the prompt
// 2. Flags that were set on fs
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs must already be parsed and carry the flags from DefineFlags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("pggraphql")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pggraphql/")
		v.AddConfigPath("$HOME/.pggraphql")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, fs)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("database.connection_string") == "" && v.GetString("database.connection_string_file") != "" {
		conn, err := readSecretFile(v.GetString("database.connection_string_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read connection string file: %w", err)
		}
		v.Set("database.connection_string", conn)
	}
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

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
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if ignoredFlags[f.Name] {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags defines the configuration flags on fs using canonical snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file path")

	// Database connection flags
	fs.String("database.connection_string", "", "Complete Postgres connection string (URL or key=value)")
	fs.String("database.connection_string_file", "", "Path to file containing the connection string (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for database password securely")
	fs.String("database.database", "", "Database name")
	fs.String("database.sslmode", "", "SSL mode (disable, allow, prefer, require, verify-ca, verify-full)")
	fs.String("database.sslrootcert", "", "Path to CA certificate for server verification")
	fs.String("database.sslcert", "", "Path to client certificate")
	fs.String("database.sslkey", "", "Path to client private key")
	fs.StringSlice("database.schemas", nil, "Schemas to introspect (comma-separated or repeated)")
	fs.Duration("database.connect_timeout", 0, "Connection timeout (e.g. 10s)")
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.String("database.role", "", "Role assumed by every request transaction (SET LOCAL ROLE)")
	fs.StringSlice("database.settings", nil, "Transaction-local settings applied to every request (name=value, repeatable)")

	// Type mapping flags
	fs.Bool("types.extended_types", false, "Map json, uuid, ranges and other extended types to dedicated scalars")
	fs.Bool("types.skip_hstore", false, "Do not expose hstore columns")
	fs.Bool("types.custom_network_scalars", false, "Expose inet, cidr and macaddr as dedicated scalars")
	fs.Bool("types.legacy_array_input", false, "Accept array literals as plain strings")
	fs.Bool("types.strict_tweaks", false, "Fail schema build on types without an output tweak")

	// GraphQL flags
	fs.Int("graphql.default_page_size", 0, "Page size used when a connection has no first/last")
	fs.Int("graphql.max_page_size", 0, "Maximum accepted first/last")
	fs.Int("graphql.max_depth", 0, "Maximum GraphQL query depth")
	fs.Int("graphql.max_complexity", 0, "Maximum GraphQL query complexity")
	fs.Int("graphql.max_rows", 0, "Maximum estimated rows per request")
	fs.Bool("graphql.disable_mutations", false, "Omit the Mutation root")

	// Logging flags
	fs.String("log.level", "", "Log level (debug, info, warn, error)")
	fs.String("log.format", "", "Log format (json, text)")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Bool("observability.log_exports_enabled", false, "Enable OTLP log export")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
	fs.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
	fs.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
	fs.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient errors")

	// Output flags
	fs.String("output.sdl_file", "", "Write the printed schema to this file")
	fs.String("output.metrics_file", "", "Write a Prometheus text dump of collected metrics on exit")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.connection_string", "")
	v.SetDefault("database.connection_string_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "postgres")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.sslrootcert", "")
	v.SetDefault("database.sslcert", "")
	v.SetDefault("database.sslkey", "")
	v.SetDefault("database.schemas", []string{"public"})
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.pool.max_open", 10)
	v.SetDefault("database.pool.max_idle", 2)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.role", "")
	v.SetDefault("database.settings", []string{})

	v.SetDefault("types.extended_types", true)
	v.SetDefault("types.skip_hstore", false)
	v.SetDefault("types.custom_network_scalars", false)
	v.SetDefault("types.legacy_array_input", false)
	v.SetDefault("types.strict_tweaks", false)

	v.SetDefault("schema_filters.allow_tables", []string{"*"})
	v.SetDefault("schema_filters.deny_tables", []string{})
	v.SetDefault("schema_filters.scan_views_enabled", true)
	v.SetDefault("schema_filters.allow_columns", map[string][]string{})
	v.SetDefault("schema_filters.deny_columns", map[string][]string{})
	v.SetDefault("schema_filters.deny_mutation_tables", []string{})
	v.SetDefault("schema_filters.deny_mutation_columns", map[string][]string{})

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})

	v.SetDefault("graphql.default_page_size", 100)
	v.SetDefault("graphql.max_page_size", 1000)
	v.SetDefault("graphql.max_depth", 10)
	v.SetDefault("graphql.max_complexity", 0)
	v.SetDefault("graphql.max_rows", 0)
	v.SetDefault("graphql.disable_mutations", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("observability.service_name", "pg-graphql")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.log_exports_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.otlp.endpoint", "")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)

	v.SetDefault("output.sdl_file", "")
	v.SetDefault("output.metrics_file", "")
}

// promptTerminalPassword prompts on stderr so stdout stays reserved for results.
func promptTerminalPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(stdin)
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
		"database.connection_string_file",
		"database.password_file",
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
