package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Excel rejects worksheet names longer than 31 characters.
const maxSheetNameLength = 31

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

	c.Warehouse.validate(result)
	c.Server.validate(result)
	c.Export.validate(result)
	c.Observability.validate(result)

	return result
}

func (w *WarehouseConfig) validate(result *ValidationResult) {
	// Port range validation (only if not using connection string)
	if w.ConnectionString == "" && (w.Port < 1 || w.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", w.Port),
		})
	}

	if strings.TrimSpace(w.Table) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.table",
			Message: "report table name cannot be empty",
			Hint:    "set warehouse.table to the table holding report rows",
		})
	}

	w.TLS.validate(result)

	// Connection pool validation
	if w.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if w.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if w.Pool.MaxIdle > w.Pool.MaxOpen && w.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "warehouse.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}

	// Connection retry validation
	if w.ConnectionTimeout > 0 && w.ConnectionRetryInterval > w.ConnectionTimeout {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "warehouse.connection_retry_interval",
			Message: "connection_retry_interval is greater than connection_timeout",
			Hint:    "only one connection attempt will be made",
		})
	}
	if w.ConnectionRetryInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.connection_retry_interval",
			Message: "connection_retry_interval cannot be negative",
		})
	}
	if w.ConnectionTimeout > 0 && w.ConnectionRetryInterval == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.connection_retry_interval",
			Message: "connection_retry_interval must be greater than 0 when connection_timeout is set",
			Hint:    "set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
		})
	}
	if w.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}

	if _, err := w.EffectiveDatabaseName(); err != nil {
		field := "warehouse.database"
		hint := "set warehouse.database or include a /database in warehouse.dsn"
		if strings.HasPrefix(err.Error(), "warehouse.dsn") {
			field = "warehouse.dsn"
			hint = "set a valid MySQL DSN in warehouse.dsn/warehouse.dsn_file"
		}
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Message: err.Error(),
			Hint:    hint,
		})
	}
}

func (t *WarehouseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	// CA file is required for verify-ca and verify-full
	caFile := t.resolveCAFile()
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && caFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
			Hint:    "set ca_file or ca_file_env to specify the CA certificate",
		})
	}

	// Client cert and key must both be specified or neither
	certFile := t.resolveCertFile()
	keyFile := t.resolveKeyFile()
	if (certFile != "" && keyFile == "") || (certFile == "" && keyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "warehouse.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}

	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "warehouse.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (e *ExportConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(e.SheetName) == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "export.sheet_name",
			Message: "sheet name is empty",
			Hint:    "the default sheet name will be used",
		})
		return
	}
	if len(e.SheetName) > maxSheetNameLength {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "export.sheet_name",
			Message: fmt.Sprintf("sheet name exceeds %d characters", maxSheetNameLength),
			Hint:    "spreadsheet applications reject longer worksheet names",
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	// Port range validation
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	// Rate limit validation
	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_rps",
				Message: "rate_limit_rps must be greater than 0 when rate limiting is enabled",
			})
		}
		if s.RateLimitBurst <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_burst",
				Message: "rate_limit_burst must be greater than 0 when rate limiting is enabled",
			})
		}
	}

	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.rate_limit_enabled",
			Message: "rate limit values are set but rate limiting is disabled",
			Hint:    "enable server.rate_limit_enabled to apply rate limits",
		})
	}

	// CORS validation
	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "CORS enabled but no allowed origins configured",
				Hint:    "set cors_allowed_origins or disable CORS",
			})
		}

		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}

		if hasWildcard && s.CORSAllowCredentials {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "wildcard origin (*) cannot be used with credentials",
				Hint:    "use specific origins with credentials, or wildcard without credentials",
			})
		}

		if hasWildcard {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "server.cors_allowed_origins",
				Message: "CORS wildcard origin enabled",
				Hint:    "use specific origins in production for better security",
			})
		}
	}

	// TLS validation
	validTLSModes := map[string]bool{"": true, "off": true, "file": true}
	if !validTLSModes[s.TLSMode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.tls_mode",
			Message: fmt.Sprintf("invalid TLS mode %q", s.TLSMode),
			Hint:    "valid values are: off, file",
		})
	}

	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.tls_cert_file",
				Message: "TLS cert file required when tls_mode is 'file'",
			})
		}
		if s.TLSKeyFile == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.tls_key_file",
				Message: "TLS key file required when tls_mode is 'file'",
			})
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
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

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
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
