package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

// CheckSchema compares the registry's vector names with the collection's
// named vectors. Mismatches are logged and only returned when strict is set.
func CheckSchema(ctx context.Context, inspector ports.SchemaInspector, expected []string, strict bool) error {
	actual, err := inspector.NamedVectors(ctx)
	if err != nil {
		if strict {
			return fmt.Errorf("inspect collection schema: %w", err)
		}
		slog.Warn("schema_check_skipped", "error", err)
		return nil
	}

	var missing []string
	for _, name := range expected {
		if !slices.Contains(actual, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	slog.Warn("schema_vectors_missing", "missing", missing, "available", actual)
	if strict {
		return fmt.Errorf("collection is missing named vectors %v", missing)
	}
	return nil
}
