// Package config loads configuration from files, env vars and flags, and validates it.
package config

import (
	"strings"
	"time"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/pgtypes"
	"pg-graphql/internal/schema"
	"pg-graphql/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Types         TypesConfig         `mapstructure:"types"`
	SchemaFilters schemafilter.Config `mapstructure:"schema_filters"`
	Naming        naming.Config       `mapstructure:"naming"`
	GraphQL       GraphQLConfig       `mapstructure:"graphql"`
	Log           LogConfig           `mapstructure:"log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Output        OutputConfig        `mapstructure:"output"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig describes the Postgres connection and the schemas to introspect.
type DatabaseConfig struct {
	// ConnectionString, when set, is used instead of the discrete fields.
	ConnectionString     string `mapstructure:"connection_string"`
	ConnectionStringFile string `mapstructure:"connection_string_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	SSLMode     string `mapstructure:"sslmode"`
	SSLRootCert string `mapstructure:"sslrootcert"`
	SSLCert     string `mapstructure:"sslcert"`
	SSLKey      string `mapstructure:"sslkey"`

	Schemas        []string      `mapstructure:"schemas"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Pool           PoolConfig    `mapstructure:"pool"`

	// Role and Settings are applied to every request transaction. Settings
	// are name=value pairs; names may be dotted (app.tenant_id).
	Role     string   `mapstructure:"role"`
	Settings []string `mapstructure:"settings"`
}

// TransactionSettings returns the per-transaction settings. Malformed pairs
// are rejected by Validate.
func (d *DatabaseConfig) TransactionSettings() dbexec.Settings {
	s := dbexec.Settings{Role: d.Role}
	for _, pair := range d.Settings {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if s.Values == nil {
			s.Values = make(map[string]string, len(d.Settings))
		}
		s.Values[strings.TrimSpace(name)] = value
	}
	return s
}

// TypesConfig controls how Postgres types map to GraphQL.
type TypesConfig struct {
	ExtendedTypes        bool `mapstructure:"extended_types"`
	SkipHstore           bool `mapstructure:"skip_hstore"`
	CustomNetworkScalars bool `mapstructure:"custom_network_scalars"`
	LegacyArrayInput     bool `mapstructure:"legacy_array_input"`
	StrictTweaks         bool `mapstructure:"strict_tweaks"`
}

// RegistryOptions converts the section to type registry options.
func (t TypesConfig) RegistryOptions() pgtypes.Options {
	return pgtypes.Options{
		ExtendedTypes:        t.ExtendedTypes,
		SkipHstore:           t.SkipHstore,
		CustomNetworkScalars: t.CustomNetworkScalars,
		LegacyArrayInput:     t.LegacyArrayInput,
		StrictTweaks:         t.StrictTweaks,
	}
}

// GraphQLConfig controls the generated schema and request limits.
type GraphQLConfig struct {
	DefaultPageSize  int  `mapstructure:"default_page_size"`
	MaxPageSize      int  `mapstructure:"max_page_size"`
	MaxDepth         int  `mapstructure:"max_depth"`
	MaxComplexity    int  `mapstructure:"max_complexity"`
	MaxRows          int  `mapstructure:"max_rows"`
	DisableMutations bool `mapstructure:"disable_mutations"`
}

// SchemaOptions converts the GraphQL, filter and type sections to schema build options.
func (c *Config) SchemaOptions() schema.Options {
	return schema.Options{
		Assembler: assembler.Options{
			DefaultLimit: c.GraphQL.DefaultPageSize,
			MaxLimit:     c.GraphQL.MaxPageSize,
		},
		Filters: c.SchemaFilters,
		Limits: schema.Limits{
			MaxDepth:      c.GraphQL.MaxDepth,
			MaxComplexity: c.GraphQL.MaxComplexity,
			MaxRows:       c.GraphQL.MaxRows,
		},
		DisableMutations: c.GraphQL.DisableMutations,
	}
}

// LogConfig controls local logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig controls OpenTelemetry signals.
type ObservabilityConfig struct {
	ServiceName      string     `mapstructure:"service_name"`
	ServiceVersion   string     `mapstructure:"service_version"`
	Environment      string     `mapstructure:"environment"`
	MetricsEnabled   bool       `mapstructure:"metrics_enabled"`
	TracingEnabled   bool       `mapstructure:"tracing_enabled"`
	LogExports       bool       `mapstructure:"log_exports_enabled"`
	TraceSampleRatio float64    `mapstructure:"trace_sample_ratio"`
	OTLP             OTLPConfig `mapstructure:"otlp"`
}

// OTLPConfig configures the OTLP exporters shared by traces and logs.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"`
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"`
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
}

// ProviderConfig converts the section to observability provider configuration.
func (o *ObservabilityConfig) ProviderConfig() observability.Config {
	return observability.Config{
		ServiceName:      o.ServiceName,
		ServiceVersion:   o.ServiceVersion,
		Environment:      o.Environment,
		TraceSampleRatio: o.TraceSampleRatio,
		MetricsEnabled:   o.MetricsEnabled,
		TracingEnabled:   o.TracingEnabled,
		LoggingEnabled:   o.LogExports,
		OTLP: observability.OTLPExporterConfig{
			Endpoint:          o.OTLP.Endpoint,
			Protocol:          o.OTLP.Protocol,
			Insecure:          o.OTLP.Insecure,
			TLSCertFile:       o.OTLP.TLSCertFile,
			TLSClientCertFile: o.OTLP.TLSClientCertFile,
			TLSClientKeyFile:  o.OTLP.TLSClientKeyFile,
			Headers:           o.OTLP.Headers,
			Timeout:           o.OTLP.Timeout,
			Compression:       o.OTLP.Compression,
			RetryEnabled:      o.OTLP.RetryEnabled,
		},
	}
}

// OutputConfig names files the CLI writes besides stdout.
type OutputConfig struct {
	// SDLFile receives the printed schema.
	SDLFile string `mapstructure:"sdl_file"`
	// MetricsFile receives a Prometheus text dump when the CLI exits.
	MetricsFile string `mapstructure:"metrics_file"`
}
