// Package config loads service configuration from TRIALSITE_* environment
// variables, optionally seeded from a .env file.
//
// Server settings:
//
//	TRIALSITE_PORT="8080"
//	TRIALSITE_HEALTH_PORT="9090"
//	TRIALSITE_CORS_ORIGINS="https://portal.example.org,http://localhost:3000"
//
// Storage settings:
//
//	TRIALSITE_STORAGE_DRIVER="postgres"  # memory, postgres, sqlite
//	TRIALSITE_DATABASE_URL="postgres://localhost/trialsite?sslmode=disable"
//	TRIALSITE_HIERARCHY_CACHE_SIZE="4096"
//	TRIALSITE_HIERARCHY_CACHE_TTL="30s"
//
// Authentication and rate limiting:
//
//	TRIALSITE_JWT_SECRET="..."  # at least 32 bytes
//	TRIALSITE_REDIS_URL="redis://localhost:6379/0"
//	TRIALSITE_RATE_LIMIT_REQUESTS="1000"
//
// Signatures, audit and observability:
//
//	TRIALSITE_SIGNATURE_TTL="720h"
//	TRIALSITE_SIGNATURE_SWEEP_SCHEDULE="0 * * * *"
//	TRIALSITE_AUDIT_DIR="/var/log/trialsite/audit"
//	TRIALSITE_LOG_LEVEL="info"
//	TRIALSITE_OTEL_ENABLED="true"
package config
