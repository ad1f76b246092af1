package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads dotenv files for the current APP_ENV. Candidates are
// checked from most to least specific:
//
//	.env.<env>.local > .env.local > .env.<env> > .env
//
// godotenv.Load never overwrites variables already present in the
// process environment, so real env vars win over every file and an
// earlier candidate wins over a later one. Returns the files that were
// actually found.
func LoadDotEnv() []string {
	env := strings.ToLower(os.Getenv("APP_ENV"))

	var candidates []string
	if env != "" {
		candidates = append(candidates, ".env."+env+".local")
	}
	candidates = append(candidates, ".env.local")
	if env != "" {
		candidates = append(candidates, ".env."+env)
	}
	candidates = append(candidates, ".env")

	var found []string
	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			found = append(found, name)
		}
	}
	if len(found) > 0 {
		_ = godotenv.Load(found...)
	}
	return found
}
