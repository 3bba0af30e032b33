package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"pg-graphql/internal/logging"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.GraphQL.validate(result)
	c.Log.validate(result)
	c.Observability.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)
	validateNamingConfig(result, c.Naming)

	if c.Types.LegacyArrayInput {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "types.legacy_array_input",
			Message: "array arguments accept raw Postgres array literals",
			Hint:    "prefer GraphQL list values",
		})
	}
	return result
}

var validSSLModes = map[string]bool{
	"":            true,
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

var (
	settingNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	schemaNamePattern  = regexp.MustCompile(`^[^\s"]+$`)
)

func (d *DatabaseConfig) validate(result *ValidationResult) {
	hasConn := strings.TrimSpace(d.ConnectionString) != ""
	if !hasConn {
		if strings.TrimSpace(d.Host) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.host",
				Message: "host is required when no connection string is set",
			})
		}
		if d.Port <= 0 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", d.Port),
			})
		}
		if strings.TrimSpace(d.Database) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: "database name is required",
			})
		}
	}
	if !validSSLModes[d.SSLMode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.sslmode",
			Message: fmt.Sprintf("invalid sslmode %q", d.SSLMode),
			Hint:    "valid values are: disable, allow, prefer, require, verify-ca, verify-full",
		})
	}
	if (d.SSLCert == "") != (d.SSLKey == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.sslcert",
			Message: "sslcert and sslkey must be set together",
		})
	}

	if len(d.Schemas) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.schemas",
			Message: "at least one schema is required",
		})
	}
	for _, s := range d.Schemas {
		if !schemaNamePattern.MatchString(s) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.schemas",
				Message: fmt.Sprintf("invalid schema name %q", s),
			})
		}
	}

	if d.Pool.MaxOpen < 0 || d.Pool.MaxIdle < 0 || d.Pool.MaxLifetime < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool",
			Message: "pool settings cannot be negative",
		})
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
		})
	}

	for _, pair := range d.Settings {
		name, _, ok := strings.Cut(pair, "=")
		if !ok || !settingNamePattern.MatchString(strings.TrimSpace(name)) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.settings",
				Message: fmt.Sprintf("invalid setting %q", pair),
				Hint:    "use name=value with a Postgres parameter name such as search_path or app.user_id",
			})
		}
	}

	if len(result.Errors) == 0 {
		if _, err := pgx.ParseConfig(d.DSN()); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.connection_string",
				Message: fmt.Sprintf("invalid connection settings: %v", err),
			})
		}
	}
}

func (g *GraphQLConfig) validate(result *ValidationResult) {
	if g.DefaultPageSize <= 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql.default_page_size",
			Message: "default_page_size must be positive",
		})
	}
	if g.MaxPageSize > 0 && g.DefaultPageSize > g.MaxPageSize {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql.default_page_size",
			Message: fmt.Sprintf("default_page_size (%d) exceeds max_page_size (%d)", g.DefaultPageSize, g.MaxPageSize),
		})
	}
	if g.MaxPageSize < 0 || g.MaxDepth < 0 || g.MaxComplexity < 0 || g.MaxRows < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql",
			Message: "limits cannot be negative",
			Hint:    "use 0 to disable a limit",
		})
	}
	if g.MaxDepth == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "graphql.max_depth",
			Message: "query depth is unlimited",
		})
	}
}

func (l *LogConfig) validate(result *ValidationResult) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.level",
			Message: err.Error(),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid log format %q", l.Format),
			Hint:    "valid values are: json, text",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio must be between 0.0 and 1.0, got %v", o.TraceSampleRatio),
		})
	}
	if (o.TracingEnabled || o.LogExports) && o.OTLP.Endpoint == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.otlp.endpoint",
			Message: "no OTLP endpoint set; exporters use their default endpoint",
		})
	}
	o.OTLP.validate("observability.otlp", result)
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && o.Endpoint != "" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if (o.TLSClientCertFile == "") != (o.TLSClientKeyFile == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".tls_client_cert_file",
			Message: "tls_client_cert_file and tls_client_key_file must be set together",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "schema_filters.deny_tables", filters.DenyTables)
	validateGlobList(result, "schema_filters.deny_mutation_tables", filters.DenyMutationTables)
	validatePatternMap(result, "schema_filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "schema_filters.deny_columns", filters.DenyColumns)
	validatePatternMap(result, "schema_filters.deny_mutation_columns", filters.DenyMutationColumns)
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if !identifierPattern.MatchString(from) || !identifierPattern.MatchString(to) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("override %q -> %q must map lower-case identifiers", from, to),
				})
			}
		}
	}
	check("naming.plural_overrides", cfg.PluralOverrides)
	check("naming.singular_overrides", cfg.SingularOverrides)
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "table pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "x"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err),
			})
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern),
				})
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "x"); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err),
				})
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(p), "x"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid glob pattern %q: %v", p, err),
			})
		}
	}
}
