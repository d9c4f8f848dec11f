package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret through the *_FILE convention: when
// envName+"_FILE" is set, the secret is the trimmed contents of that
// file (as mounted by docker/k8s secrets); otherwise the plain
// environment variable is used. Neither set resolves to "".
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// MustResolveSecret is ResolveSecret for secrets the process cannot
// start without; a read failure exits. The planner key goes through
// this at startup.
func MustResolveSecret(envName string) string {
	value, err := ResolveSecret(envName)
	if err != nil {
		// The error carries the path, never the secret itself.
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return value
}
