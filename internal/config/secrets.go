package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	secretService   = "ghost"
	apiTokenAccount = "api_token"
)

// FileSecrets keeps credentials in secrets.yaml (mode 0600) next to the
// config file, keyed by service then account.
type FileSecrets struct {
	path string
}

func NewSecretStore() FileSecrets {
	return FileSecrets{path: filepath.Join(configDir(), "secrets.yaml")}
}

func (f FileSecrets) read() (map[string]map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := yaml.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f FileSecrets) Get(service, account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("secret %s/%s not found", service, account)
	}
	return strings.TrimSpace(val), nil
}

func (f FileSecrets) Set(service, account, value string) error {
	secrets, err := f.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if secrets == nil {
		secrets = map[string]map[string]string{}
	}
	if secrets[service] == nil {
		secrets[service] = map[string]string{}
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := yaml.Marshal(secrets)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// SecretStore is the read/write secret store surface.
type SecretStore interface {
	SecretReader
	Set(service, account, value string) error
}

// GetAPIToken returns the bearer token protecting the API, generating and
// storing a new one on first use.
func GetAPIToken(kc SecretStore) (string, error) {
	if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetSecret stores a secret key in the platform secret store.
func SetSecret(kc SecretStore, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if !s.secret {
			return fmt.Errorf("%q is not a secret; use config set", key)
		}
		return kc.Set(secretService, key, value)
	}
	return fmt.Errorf("unknown config key: %q", key)
}

// SecretKeys returns the names of keys read from the secret store.
func SecretKeys() []string {
	var keys []string
	for _, s := range specs {
		if s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
