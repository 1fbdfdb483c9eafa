package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/class-session-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "svc", Password: "pw", Name: "class_sessions", SSLMode: "require"})

	assert.Equal(t, "host=db port=5433 user=svc password=pw dbname=class_sessions sslmode=require application_name=class-session-api", dsn)
}
