package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "tin-report-custom"

// DSN returns a MySQL-compatible data source name.
// If ConnectionString is set, it is used directly (with TLS config applied).
// Otherwise, builds DSN from discrete fields.
func (w *WarehouseConfig) DSN() string {
	var dsn string

	if w.ConnectionString != "" {
		dsn = w.ConnectionString
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
	} else {
		dsn = fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			w.User,
			w.Password,
			w.Host,
			w.Port,
			w.Database,
		)
	}

	tlsParam := w.effectiveTLSParam()
	if tlsParam != "" && !strings.Contains(dsn, "tls=") {
		dsn += fmt.Sprintf("&tls=%s", tlsParam)
	}

	return dsn
}

// EffectiveDatabaseName returns the database the queries will run against,
// resolving the DSN when one is configured.
func (w *WarehouseConfig) EffectiveDatabaseName() (string, error) {
	configDatabase := strings.TrimSpace(w.Database)
	dsnDatabase, err := parseDSNDatabaseName(w.ConnectionString)
	if err != nil {
		return "", err
	}

	if configDatabase != "" {
		if dsnDatabase != "" && configDatabase != dsnDatabase {
			return "", fmt.Errorf(
				"database mismatch: warehouse.database=%q but warehouse.dsn targets %q",
				configDatabase,
				dsnDatabase,
			)
		}
		return configDatabase, nil
	}

	if dsnDatabase != "" {
		return dsnDatabase, nil
	}

	return "", fmt.Errorf(
		"no database configured: set warehouse.database or include /<database> in warehouse.dsn",
	)
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("warehouse.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// effectiveTLSParam returns the TLS parameter value for the DSN.
// Returns the registered config name for custom TLS, or empty string if no
// TLS is configured.
func (w *WarehouseConfig) effectiveTLSParam() string {
	switch mode := w.TLS.Mode; mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		// Unknown mode, let the driver handle it.
		return mode
	}
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening the connection when using verify-ca or
// verify-full modes. Returns nil if no custom TLS configuration is needed.
func (w *WarehouseConfig) RegisterTLS() error {
	mode := w.TLS.Mode
	if mode != "verify-ca" && mode != "verify-full" {
		return nil
	}

	tlsCfg, err := w.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}

	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}

	return nil
}

func (w *WarehouseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	caFile := w.TLS.resolveCAFile()
	certFile := w.TLS.resolveCertFile()
	keyFile := w.TLS.resolveKeyFile()

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if certFile != "" || keyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if w.TLS.Mode == "verify-full" && w.TLS.ServerName != "" {
		tlsCfg.ServerName = w.TLS.ServerName
	}

	return tlsCfg, nil
}

// resolveCAFile returns the effective CA file path, checking env var indirection.
func (t *WarehouseTLSConfig) resolveCAFile() string {
	if t.CAFileEnv != "" {
		if path := os.Getenv(t.CAFileEnv); path != "" {
			return path
		}
	}
	return t.CAFile
}

func (t *WarehouseTLSConfig) resolveCertFile() string {
	if t.CertFileEnv != "" {
		if path := os.Getenv(t.CertFileEnv); path != "" {
			return path
		}
	}
	return t.CertFile
}

func (t *WarehouseTLSConfig) resolveKeyFile() string {
	if t.KeyFileEnv != "" {
		if path := os.Getenv(t.KeyFileEnv); path != "" {
			return path
		}
	}
	return t.KeyFile
}
