// Package credentials reads and seeds the terraform CLI credentials file
// (~/.terraform.d/credentials.tfrc.json), so generated configurations and
// the run report can authenticate without extra setup.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"
)

type credentialsFile struct {
	Credentials map[string]hostCredentials `json:"credentials"`
}

type hostCredentials struct {
	Token string `json:"token"`
}

// DefaultPath is where the terraform CLI keeps its credentials.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".terraform.d", "credentials.tfrc.json"), nil
}

func load(path string) (*credentialsFile, error) {
	creds := &credentialsFile{Credentials: map[string]hostCredentials{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return creds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	// A corrupt file is replaced rather than failing the run.
	if err := json.Unmarshal(raw, creds); err != nil {
		logger.Warnf("could not parse %s, rewriting it: %v", path, err)
		creds.Credentials = map[string]hostCredentials{}
	}
	if creds.Credentials == nil {
		creds.Credentials = map[string]hostCredentials{}
	}
	return creds, nil
}

// Ensure adds a token for hostname unless one is already present. Existing
// entries are never overwritten.
func Ensure(path, hostname, token string) error {
	creds, err := load(path)
	if err != nil {
		return err
	}
	if _, ok := creds.Credentials[hostname]; ok {
		logger.Infof("credentials for %s already exist in %s", hostname, path)
		return nil
	}

	creds.Credentials[hostname] = hostCredentials{Token: token}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Infof("added credentials for %s to %s", hostname, path)
	return nil
}

// Token returns the stored token for hostname, or an error telling the
// operator how to obtain one.
func Token(path, hostname string) (string, error) {
	creds, err := load(path)
	if err != nil {
		return "", err
	}
	host, ok := creds.Credentials[hostname]
	if !ok || host.Token == "" {
		return "", fmt.Errorf("no credentials for %s; run `terraform login %s` first", hostname, hostname)
	}
	return host.Token, nil
}
