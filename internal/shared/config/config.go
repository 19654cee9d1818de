package config

import "os"

// Config centraliza variáveis de ambiente e parâmetros de execução do serviço.
// Inclui portas, credencial administrativa e diretórios de dados.
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	// Credencial compartilhada exigida em toda mutação do ledger
	AdminPassword string

	// Diretórios do documento durável e do arquivo de backups
	DataDir   string
	BackupDir string

	// Origens permitidas no CORS (padrão "*" para uso local)
	AllowedOrigins string

	HTTPPort    string // porta pública (REST + WebSocket)
	MetricsPort string // porta exclusiva para /metrics e /healthz
}

// Load carrega variáveis de ambiente e define defaults de desenvolvimento.
func Load() Config {
	return Config{
		Env:         getEnv("ENV", "local"),
		ServiceName: getEnv("SERVICE_NAME", "ledger-service"),

		AdminPassword: getEnv("ADMIN_PASSWORD", "dev-secret"),

		DataDir:   getEnv("DATA_DIR", "./data"),
		BackupDir: getEnv("BACKUP_DIR", "./backups"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),
	}
}

// getEnv retorna o valor da variável de ambiente ou o default
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
