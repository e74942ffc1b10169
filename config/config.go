// Package config reads server and CLI settings from the environment, after
// loading a .env file when one is present.
package config

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port          string
	LogLevel      log.Level
	Store         string
	MongoURI      string
	MongoDatabase string
	JWTKey        []byte
	FormsDir      string
	UploadDir     string
}

// Load reads the server configuration.
func Load() Config {
	loadDotEnv()

	c := Config{
		Port:          env("PORT", "8000"),
		Store:         env("STORE", "memory"),
		MongoURI:      env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: env("MONGO_DATABASE", "cerium"),
		JWTKey:        []byte(os.Getenv("JWT_KEY")),
		FormsDir:      os.Getenv("FORMS_DIR"),
		UploadDir:     env("UPLOAD_DIR", "uploads"),
	}
	c.LogLevel = level()
	if len(c.JWTKey) == 0 {
		log.Warn("JWT_KEY not set, using an insecure development key")
		c.JWTKey = []byte("cerium-dev-key")
	}
	return c
}

// CLI holds the settings of the fill command.
type CLI struct {
	URL      string
	DraftDB  string
	LogLevel log.Level
}

func LoadCLI() CLI {
	loadDotEnv()
	return CLI{
		URL:      env("CERIUM_URL", "http://localhost:8000"),
		DraftDB:  env("CERIUM_DRAFT_DB", "cerium-drafts.db"),
		LogLevel: level(),
	}
}

// Setup applies the logging options shared by every binary.
func Setup(lvl log.Level) {
	customFormatter := new(log.TextFormatter)
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)
	log.SetLevel(lvl)
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}
}

func level() log.Level {
	lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
