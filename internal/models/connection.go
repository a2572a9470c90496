// Package models defines the domain entities shared across Aegis components.
package models

import "time"

// Dialect identifies the SQL dialect of an external warehouse.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSnowflake Dialect = "snowflake"
)

// Connection is the identity of an external warehouse. The URI is stored as
// ciphertext and decrypted only when a connector is instantiated.
type Connection struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Dialect      Dialect   `json:"dialect"`
	URIEncrypted string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
