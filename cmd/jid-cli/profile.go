package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile holds per-user CLI defaults.
type Profile struct {
	RPC      string        `yaml:"rpc"`
	Keystore string        `yaml:"keystore"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
}

var activeProfile Profile

func defaultProfilePath() string {
	if v := strings.TrimSpace(os.Getenv("JID_PROFILE")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jid", "profile.yaml")
}

// loadProfile reads path. A missing file yields an empty profile.
func loadProfile(path string) (Profile, error) {
	var profile Profile
	if strings.TrimSpace(path) == "" {
		return profile, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return profile, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return profile, nil
}

func (p Profile) keystore(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return strings.TrimSpace(p.Keystore)
}

func (p Profile) ttl() time.Duration {
	if p.TokenTTL > 0 {
		return p.TokenTTL
	}
	return 10 * time.Minute
}
