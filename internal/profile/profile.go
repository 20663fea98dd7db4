package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/comunergy/energy-wallet/internal/store"
)

const profileFile = "profile.json"

// Profile is the user's display identity shown next to the wallet address.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func profilePath() (string, error) {
	appDataDir, err := store.GetAppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDataDir, profileFile), nil
}

// Save persists the profile.
func Save(p Profile) error {
	filePath, err := profilePath()
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}

// Load returns the saved profile, or nil when none exists or the file is
// unreadable.
func Load() *Profile {
	filePath, err := profilePath()
	if err != nil {
		return nil
	}

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil
	}

	var p Profile
	if err := json.Unmarshal(fileData, &p); err != nil {
		// A corrupted profile is discarded rather than surfaced.
		os.Remove(filePath)
		return nil
	}

	return &p
}

// Clear removes the saved profile. Called on disconnect.
func Clear() {
	filePath, err := profilePath()
	if err != nil {
		return
	}
	os.Remove(filePath)
}
