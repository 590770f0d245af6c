package config

import (
	"fmt"
	"strings"
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

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Schema.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString != "" {
		return
	}

	if d.Host == "" {
		result.addError("database.host", "host is required when no DSN is set",
			"set database.host or provide database.dsn")
	}
	if d.Port <= 0 || d.Port > 65535 {
		result.addError("database.port", fmt.Sprintf("invalid port %d", d.Port),
			"use a port between 1 and 65535")
	}
	if d.User == "" {
		result.addError("database.user", "user is required when no DSN is set", "")
	}
	if d.Database == "" {
		result.addError("database.database", "database name is required when no DSN is set", "")
	}
	if d.Password == "" && !d.PasswordPrompt {
		result.addWarning("database.password", "no password configured",
			"set database.password_file or database.password_prompt for secure input")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle",
			fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
			"idle connections above max_open are never used")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port <= 0 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("invalid port %d", s.Port),
			"use a port between 1 and 65535")
	}
	if s.GraphQLDefaultLimit <= 0 {
		result.addError("server.graphql_default_limit",
			fmt.Sprintf("default limit must be positive, got %d", s.GraphQLDefaultLimit), "")
	}
	if s.CORSEnabled && len(s.CORSAllowedOrigins) == 0 {
		result.addWarning("server.cors_allowed_origins", "CORS enabled with no allowed origins",
			"no cross-origin request will be accepted")
	}
	for _, origin := range s.CORSAllowedOrigins {
		if origin == "*" && s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins",
				"wildcard origin cannot be combined with allow_credentials",
				"list explicit origins or disable credentials")
		}
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if s.DefinitionsFile == "" {
		result.addError("schema.definitions_file", "definitions file is required",
			"point schema.definitions_file at a YAML file with an objects list")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.addError("observability.logging.level",
			fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"use debug, info, warn, or error")
	}

	switch o.Logging.Format {
	case "json", "text":
	default:
		result.addError("observability.logging.format",
			fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"use json or text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio",
			fmt.Sprintf("sample ratio must be within [0, 1], got %g", o.TraceSampleRatio), "")
	}

	needsOTLP := o.TracingEnabled || o.Logging.ExportsEnabled
	if needsOTLP {
		if o.OTLP.Endpoint == "" {
			result.addError("observability.otlp.endpoint", "endpoint is required when OTLP export is enabled", "")
		}
		switch o.OTLP.Protocol {
		case "grpc", "http/protobuf":
		default:
			result.addError("observability.otlp.protocol",
				fmt.Sprintf("invalid protocol %q", o.OTLP.Protocol),
				"use grpc or http/protobuf")
		}
		if o.OTLP.Insecure && o.OTLP.TLSCertFile != "" {
			result.addWarning("observability.otlp.insecure",
				"insecure is set together with a TLS certificate",
				"the certificate is ignored on insecure connections")
		}
	}

	if o.ServiceName == "" {
		result.addWarning("observability.service_name", "service name is empty",
			"telemetry will be attributed to an unnamed service")
	}
}
