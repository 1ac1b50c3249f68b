package store

// schemaDDL bootstraps the relational layout. Every table uses a surrogate
// integer key. Token columns are opaque strings.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(128) NOT NULL,
		is_admin TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(128) NOT NULL,
		key_prefix VARCHAR(16) NOT NULL,
		key_hash CHAR(64) NOT NULL UNIQUE,
		active TINYINT(1) NOT NULL DEFAULT 1,
		daily_limit BIGINT NOT NULL DEFAULT 0,
		monthly_limit BIGINT NOT NULL DEFAULT 0,
		total_limit BIGINT NOT NULL DEFAULT 0,
		daily_cost_limit DOUBLE NOT NULL DEFAULT 0,
		monthly_cost_limit DOUBLE NOT NULL DEFAULT 0,
		total_cost_limit DOUBLE NOT NULL DEFAULT 0,
		rate_limit BIGINT NOT NULL DEFAULT 0,
		concurrency_limit BIGINT NOT NULL DEFAULT 0,
		validity_days BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME NULL,
		INDEX idx_api_keys_hash (key_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS api_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		api_key_id BIGINT NOT NULL,
		api_key_prefix VARCHAR(16) NOT NULL,
		credential_id BIGINT NOT NULL DEFAULT 0,
		client_ip VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(255) NOT NULL DEFAULT '',
		method VARCHAR(8) NOT NULL,
		path VARCHAR(255) NOT NULL,
		model VARCHAR(128) NOT NULL DEFAULT '',
		stream TINYINT(1) NOT NULL DEFAULT 0,
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		status_code INT NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_api_logs_key_created (api_key_id, created_at),
		INDEX idx_api_logs_created (created_at)
	)`,
	credentialTableDDL("credentials"),
	errorCredentialTableDDL("error_credentials"),
	credentialTableDDL("gemini_credentials"),
	errorCredentialTableDDL("gemini_error_credentials"),
	credentialTableDDL("ws_credentials"),
	errorCredentialTableDDL("ws_error_credentials"),
	credentialTableDDL("agent_credentials"),
	errorCredentialTableDDL("agent_error_credentials"),
	`CREATE TABLE IF NOT EXISTS trial_applications (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(128) NOT NULL,
		note VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS site_settings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(64) NOT NULL UNIQUE,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
}

func credentialTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		auth_method VARCHAR(32) NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		client_id VARCHAR(255) NOT NULL DEFAULT '',
		client_secret VARCHAR(255) NOT NULL DEFAULT '',
		region VARCHAR(32) NOT NULL DEFAULT '',
		project_id VARCHAR(128) NOT NULL DEFAULT '',
		expires_at DATETIME NULL,
		active TINYINT(1) NOT NULL DEFAULT 1,
		use_count BIGINT NOT NULL DEFAULT 0,
		error_count BIGINT NOT NULL DEFAULT 0,
		last_error TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
}

func errorCredentialTableDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		auth_method VARCHAR(32) NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		client_id VARCHAR(255) NOT NULL DEFAULT '',
		client_secret VARCHAR(255) NOT NULL DEFAULT '',
		region VARCHAR(32) NOT NULL DEFAULT '',
		project_id VARCHAR(128) NOT NULL DEFAULT '',
		expires_at DATETIME NULL,
		error_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		error_message TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
}
