// Package gcloud loads Google service account credentials shared by the
// Sheets exporter and the GCS blob store.
package gcloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrNoCredentials is returned when none of the credential variables is set.
var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// CredentialsJSONFromEnv returns service account JSON from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, checked in that order.
func CredentialsJSONFromEnv(ctx context.Context) ([]byte, error) {
	return credentialsJSON(ctx, os.Getenv, os.ReadFile)
}

func credentialsJSON(ctx context.Context, getenv func(string) string, readFile func(string) ([]byte, error)) ([]byte, error) {
	inline := strings.TrimSpace(getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline JSON credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, ErrNoCredentials
	}
}
