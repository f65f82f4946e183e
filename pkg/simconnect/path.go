package simconnect

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the name of the SimConnect server configuration file.
const FileName = "SimConnect.xml"

// Candidates returns the known SimConnect.xml locations under home, in priority
// order: the Microsoft Store package first, then the roaming profile.
func Candidates(home string) []string {
	return []string{
		filepath.Join(home, "AppData", "Local", "Packages", "Microsoft.FlightSimulator_8wekyb3d8bbwe", "LocalCache", FileName),
		filepath.Join(home, "AppData", "Roaming", "Microsoft Flight Simulator", FileName),
	}
}

// ResolvePath returns the first candidate under home that exists.
func ResolvePath(home string) (string, error) {
	if home == "" {
		return "", ErrNoHomeDir
	}
	candidates := Candidates(home)
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: searched %v", ErrConfigNotFound, candidates)
}

// DefaultPath resolves SimConnect.xml for the current user.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", ErrNoHomeDir
	}
	return ResolvePath(home)
}

// CheckPath validates an explicitly configured path.
func CheckPath(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrConfigNotFound, path)
	}
	return path, nil
}
