// Package config loads application settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultGraphQLQueryID is the query id of the Bookmarks GraphQL operation.
// Twitter rotates these occasionally; override with TWITTER_GRAPHQL_QUERY_ID.
const DefaultGraphQLQueryID = "43OUXyQe2KB6BLfli5CFPA"

// DefaultDatabaseURL is used when DATABASE_URL is unset.
const DefaultDatabaseURL = "bookmarks.db"

// Settings holds everything the process needs: the three pre-extracted
// upstream credentials, the GraphQL query id, and local service settings.
// Credentials are opaque secrets supplied by the operator; they are fixed
// for the process lifetime and must never be logged.
type Settings struct {
	BearerToken    string
	CSRFToken      string
	Cookies        string
	GraphQLQueryID string

	// DatabaseURL selects the storage backend: a postgres:// DSN uses
	// PostgreSQL, anything else is treated as an SQLite file path.
	DatabaseURL string
	ListenAddr  string
}

// Load reads settings from the environment. Credential validation is left
// to ValidateCredentials so commands that never talk to the upstream
// (stats, browsing) work without secrets.
func Load() *Settings {
	s := &Settings{
		BearerToken:    strings.TrimSpace(os.Getenv("TWITTER_BEARER_TOKEN")),
		CSRFToken:      strings.TrimSpace(os.Getenv("TWITTER_CSRF_TOKEN")),
		Cookies:        strings.TrimSpace(os.Getenv("TWITTER_COOKIES")),
		GraphQLQueryID: strings.TrimSpace(os.Getenv("TWITTER_GRAPHQL_QUERY_ID")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ListenAddr:     strings.TrimSpace(os.Getenv("LISTEN_ADDR")),
	}
	if s.GraphQLQueryID == "" {
		s.GraphQLQueryID = DefaultGraphQLQueryID
	}
	if s.DatabaseURL == "" {
		s.DatabaseURL = DefaultDatabaseURL
	}
	if s.ListenAddr == "" {
		s.ListenAddr = ":8000"
	}
	return s
}

// ValidateCredentials checks that all three upstream secrets are present.
func (s *Settings) ValidateCredentials() error {
	var missing []string
	if s.BearerToken == "" {
		missing = append(missing, "TWITTER_BEARER_TOKEN")
	}
	if s.CSRFToken == "" {
		missing = append(missing, "TWITTER_CSRF_TOKEN")
	}
	if s.Cookies == "" {
		missing = append(missing, "TWITTER_COOKIES")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL points at a PostgreSQL server.
func (s *Settings) UsesPostgres() bool {
	return strings.HasPrefix(s.DatabaseURL, "postgres://") ||
		strings.HasPrefix(s.DatabaseURL, "postgresql://")
}
