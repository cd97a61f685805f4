package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Keys accepted in the credentials file, in lookup order. The first is the
// certbot plugin form, the second the bare form.
var credentialKeys = []string{"dns_ipv64_bearer_token", "bearer-token"}

// LoadCredentials reads the bearer token from an INI credentials file.
// Length is not checked here; the record client rejects bad tokens.
func LoadCredentials(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat credentials file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		slog.Default().Warn("credentials file is accessible by other users", "path", path, "mode", info.Mode().Perm().String())
	}

	f, err := ini.Load(path)
	if err != nil {
		return "", fmt.Errorf("parse credentials file %s: %w", path, err)
	}

	section := f.Section(ini.DefaultSection)
	for _, key := range credentialKeys {
		if !section.HasKey(key) {
			continue
		}
		token := strings.TrimSpace(section.Key(key).String())
		if token == "" {
			return "", fmt.Errorf("credentials file %s: %s is empty", path, key)
		}
		return token, nil
	}
	return "", fmt.Errorf("credentials file %s: missing %s", path, strings.Join(credentialKeys, " or "))
}
