package config

import "time"

// OrchestratorConfig holds runtime configuration for the orchestrator service.
type OrchestratorConfig struct {
	Environment          string
	Addr                 string
	DatabaseURL          string
	MigrationsDir        string
	DockerHost           string
	ProxyNetwork         string
	ProxyEntryPoint      string
	ProxyCertResolver    string
	PortRangeMin         int
	PortRangeMax         int
	AgentPort            int
	BridgeTimeout        time.Duration
	EnvEncryptionKey     string
	InternalAPIToken     string
	MaxResourcesPerOwner int
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
}

// LoadOrchestratorConfig constructs an OrchestratorConfig from environment variables.
func LoadOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("ORCHESTRATOR_ADDR", ":4100"),
		DatabaseURL:          GetString("DATABASE_URL", "postgres://atelier:atelier@db:5432/atelier?sslmode=disable"),
		MigrationsDir:        GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		DockerHost:           GetString("DOCKER_HOST_OVERRIDE", ""),
		ProxyNetwork:         GetString("PROXY_NETWORK", "atelier-proxy"),
		ProxyEntryPoint:      GetString("PROXY_ENTRYPOINT", "websecure"),
		ProxyCertResolver:    GetString("PROXY_CERT_RESOLVER", "letsencrypt"),
		PortRangeMin:         GetInt("PORT_RANGE_MIN", 40000),
		PortRangeMax:         GetInt("PORT_RANGE_MAX", 49999),
		AgentPort:            GetInt("WORKSPACE_AGENT_PORT", 3888),
		BridgeTimeout:        time.Duration(GetInt("BRIDGE_COMMAND_TIMEOUT_SECONDS", 30)) * time.Second,
		EnvEncryptionKey:     GetString("ENV_ENCRYPTION_KEY", "supersecuresecret"),
		InternalAPIToken:     GetString("INTERNAL_API_TOKEN", ""),
		MaxResourcesPerOwner: GetInt("MAX_RESOURCES_PER_OWNER", 25),
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
