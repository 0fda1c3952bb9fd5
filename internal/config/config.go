package config

import (
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment. The mail
// relay credentials in particular must come from here, never from source.
type Config struct {
	Addr          string
	DatabaseURL   string
	SessionSecret string
	CORSOrigin    string
	SMTP          SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// To is the fixed destination for contact-form mail.
	To string
}

// Load reads a .env file if one exists, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// Fine in production, where env vars are set directly.
		log.Println("No .env file found, reading from environment")
	}

	port, err := strconv.Atoi(getenv("SMTP_PORT", "587"))
	if err != nil {
		return Config{}, errors.New("SMTP_PORT must be a number")
	}

	cfg := Config{
		Addr:          ":" + getenv("PORT", "8080"),
		DatabaseURL:   getenv("DATABASE_URL", "sqlite://inkpost.db"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		CORSOrigin:    os.Getenv("CORS_ORIGIN"),
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", "smtp.gmail.com"),
			Port:     port,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			To:       os.Getenv("CONTACT_TO"),
		},
	}

	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET environment variable not set")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
