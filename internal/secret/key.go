package secret

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvKey is the environment variable holding the master key.
const EnvKey = "RCONSCHED_MASTER_KEY"

// LoadOrCreateKey resolves the master key and reports whether it had to
// generate a fresh one:
//
//  1. environment variable
//  2. envPath (.env file, read via godotenv)
//  3. otherwise a fresh key is generated and appended to envPath
//
// Failing to persist a newly generated key is fatal: without it every
// stored password would become unreadable on the next start.
func LoadOrCreateKey(envPath string) (*Key, bool, error) {
	if v := strings.TrimSpace(os.Getenv(EnvKey)); v != "" {
		k, err := DecodeKey(v)
		return k, false, err
	}
	if m, err := godotenv.Read(envPath); err == nil {
		if v := strings.TrimSpace(m[EnvKey]); v != "" {
			k, err := DecodeKey(v)
			return k, false, err
		}
	}

	k, err := GenerateKey()
	if err != nil {
		return nil, false, err
	}
	if err := appendEnvLine(envPath, EnvKey+"="+EncodeKey(k)); err != nil {
		return nil, false, fmt.Errorf("secret: persist master key to %s: %w", envPath, err)
	}
	return k, true, nil
}

func appendEnvLine(path, line string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	if len(existing) > 0 {
		b.Write(existing)
		if !strings.HasSuffix(string(existing), "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString(line)
	b.WriteString("\n")
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
