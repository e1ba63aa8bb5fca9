package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config параметры сборки приложения
type Config struct {
	Addr        string
	CatalogPath string
	StoresPath  string
	Storage     string
	DataDir     string
	DatabaseURL string
	RedisAddr   string
	ViaCEPURL   string
}

// Load читает .env (если есть) и окружение
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:        getEnv("ADDR", ":9091"),
		CatalogPath: getEnv("CATALOG_PATH", "data/produtos.json"),
		StoresPath:  getEnv("STORES_PATH", "data/lojas.json"),
		Storage:     getEnv("STORAGE", "file"),
		DataDir:     getEnv("DATA_DIR", "data/state"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		ViaCEPURL:   getEnv("VIACEP_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
