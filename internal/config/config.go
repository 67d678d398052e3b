package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port              string
	DBPath            string
	JWTSecret         string
	VerifyMaxAttempts int
	LocateTimeoutS    int
}

// Load reads configuration from the environment, with a .env file as fallback
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = ":8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/canvass.db"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-in-production"
	}

	return &Config{
		Port:              port,
		DBPath:            dbPath,
		JWTSecret:         jwtSecret,
		VerifyMaxAttempts: intEnv("VERIFY_MAX_ATTEMPTS", 4),
		LocateTimeoutS:    intEnv("VERIFY_LOCATE_TIMEOUT_S", 8),
	}
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}
