package domain

import (
	"fmt"
	"net/url"
	"time"
)

// IntegrationKind identifies the external system an Integration connects to.
type IntegrationKind string

const (
	IntegrationElasticsearch IntegrationKind = "elasticsearch"
	IntegrationPostgres      IntegrationKind = "postgres"
	IntegrationMySQL         IntegrationKind = "mysql"
	IntegrationLogPipeline   IntegrationKind = "logpipeline"
	IntegrationWorkflow      IntegrationKind = "workflow"
)

// Valid reports whether the kind is one of the supported integration kinds.
func (k IntegrationKind) Valid() bool {
	switch k {
	case IntegrationElasticsearch, IntegrationPostgres, IntegrationMySQL,
		IntegrationLogPipeline, IntegrationWorkflow:
		return true
	}
	return false
}

// Integration is a named, reusable connection to an external source or
// destination system. Config holds kind-specific connection parameters
// (host, credentials, optional explicit conn_str).
type Integration struct {
	ID        string          `gorm:"type:text;primaryKey" json:"id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Kind      IntegrationKind `gorm:"type:text;not null;index:idx_integrations_kind" json:"kind"`
	Config    JSONMap         `gorm:"type:text" json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Integration.
func (Integration) TableName() string {
	return "integrations"
}

// IsRelational reports whether the integration is a relational destination.
func (i *Integration) IsRelational() bool {
	return i.Kind == IntegrationPostgres || i.Kind == IntegrationMySQL
}

// ConnString returns the connection string for a relational integration: the
// explicit conn_str from config when present, otherwise one built from the
// individual host/user/password/dbname/port fields.
func (i *Integration) ConnString() string {
	cfg := i.Config
	if s := cfg.String("conn_str"); s != "" {
		return s
	}
	host := cfg.String("host")
	user := cfg.String("user")
	dbname := cfg.String("dbname")
	if dbname == "" {
		dbname = cfg.String("database")
	}
	if host == "" || dbname == "" {
		return ""
	}
	password := cfg.String("password")

	switch i.Kind {
	case IntegrationPostgres:
		auth := ""
		if user != "" {
			auth = url.QueryEscape(user) + ":" + url.QueryEscape(password) + "@"
		}
		hostpart := host
		if port := cfg.Int("port", 0); port != 0 {
			hostpart = fmt.Sprintf("%s:%d", host, port)
		}
		return fmt.Sprintf("postgres://%s%s/%s", auth, hostpart, dbname)
	case IntegrationMySQL:
		// go-sql-driver DSN format
		port := cfg.Int("port", 3306)
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
			user, password, host, port, dbname)
	}
	return ""
}
