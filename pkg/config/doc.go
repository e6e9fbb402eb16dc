// Package config loads the server and CLI configuration.
//
// Defaults are overlaid by an optional YAML file and then by environment
// variables:
//
//	ORGADMIN_PORT="8080"
//	ORGADMIN_RATE_LIMIT_ENABLED="true"
//	ORGADMIN_ALLOWED_ORIGINS="https://admin.example.com"
//	ORGADMIN_GATEWAY="postgres"          # memory, postgres, redis, sqlite
//	ORGADMIN_POSTGRES_URL="postgres://localhost/orgadmin?sslmode=disable"
//	ORGADMIN_REDIS_URL="redis://localhost:6379/0"
//	ORGADMIN_LOCAL_PATH="/var/lib/orgadmin/local.db"
//	ORGADMIN_SESSION_PROVIDER="oidc"      # header, oidc
//	ORGADMIN_OIDC_ISSUER="https://login.example.com"
//	ORGADMIN_BACKUP_ENABLED="true"
//	ORGADMIN_BACKUP_SINK="s3"             # filesystem, s3
//	ORGADMIN_S3_BUCKET="orgadmin-backups"
//	ORGADMIN_LOG_LEVEL="info"             # debug, info, warn, error
//
// The same settings in YAML:
//
//	gateway:
//	  backend: redis
//	  redis:
//	    url: redis://cache:6379/0
//	  retry:
//	    max_attempts: 5
//	backup:
//	  enabled: true
//	  runner:
//	    schedule: "0 3 * * *"
package config
