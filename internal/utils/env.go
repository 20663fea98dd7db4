package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/comunergy/energy-wallet/internal/logger"
)

// LoadEnvironment loads environment variables from .env files.
// It tries the current directory and the directory of the executable.
func LoadEnvironment() {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env file from current directory")
	}

	execPath, err := os.Executable()
	if err != nil {
		logger.Debug("Could not determine executable path: %v", err)
		return
	}

	envPath := filepath.Join(filepath.Dir(execPath), ".env")
	if err := godotenv.Load(envPath); err == nil {
		logger.Debug("Loaded .env file from %s", envPath)
	}
}
