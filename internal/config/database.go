package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DSN returns the connection string handed to the pgx driver. An explicit
// connection string wins over the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if conn := strings.TrimSpace(d.ConnectionString); conn != "" {
		return conn
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}

	q := url.Values{}
	setIf := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	setIf("sslmode", d.SSLMode)
	setIf("sslrootcert", d.SSLRootCert)
	setIf("sslcert", d.SSLCert)
	setIf("sslkey", d.SSLKey)
	if d.ConnectTimeout > 0 {
		secs := int(d.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	q.Set("application_name", "pg-graphql")
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactedDSN returns DSN with any password masked, for logging.
func (d *DatabaseConfig) RedactedDSN() string {
	dsn := d.DSN()
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		if strings.Contains(dsn, "password=") {
			return "(connection string with password)"
		}
		return dsn
	}
	return u.Redacted()
}

// Target describes the database for logs, without credentials.
func (d *DatabaseConfig) Target() string {
	if strings.TrimSpace(d.ConnectionString) != "" {
		return d.RedactedDSN()
	}
	return fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.Database)
}
