// Package storage provides the backing-service clients: the PostgreSQL
// connection pool, the Redis client and cache helpers, and the S3 object
// store used for avatars. Configuration comes from the environment via
// pkg/config; this package only consumes the resolved Config.
package storage
