package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name of the app-data root.
const AppName = "YTAnalysis"

// AppDataRoot returns <app_data>/YTAnalysis for the current OS:
// %APPDATA% on Windows, ~/Library/Application Support on macOS,
// ~/.local/share elsewhere. Cfg.DataDir overrides it.
func AppDataRoot() (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return appDataRoot(runtime.GOOS)
}

func appDataRoot(goos string) (string, error) {
	if goos == "windows" {
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, AppName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("app data root: %w", err)
	}
	switch goos {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", AppName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName), nil
	default:
		return filepath.Join(home, ".local", "share", AppName), nil
	}
}

// LogDir returns ~/Documents/StaTube unless Cfg.LogDir is set.
func LogDir() (string, error) {
	if cfg.LogDir != "" {
		return cfg.LogDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("log dir: %w", err)
	}
	return filepath.Join(home, "Documents", "StaTube"), nil
}
