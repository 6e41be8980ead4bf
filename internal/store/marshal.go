package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/gauntlet/internal/identity"
	"github.com/roach88/gauntlet/internal/status"
)

// marshalFailures converts failures to canonical JSON TEXT for storage.
func marshalFailures(failures []*status.Failure) (string, error) {
	list := make([]any, 0, len(failures))
	for _, f := range failures {
		details := make(map[string]any, len(f.Details))
		for k, v := range f.Details {
			details[k] = v
		}
		list = append(list, map[string]any{
			"kind":    string(f.Kind),
			"message": f.Message,
			"details": details,
		})
	}
	data, err := identity.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal failures: %w", err)
	}
	return string(data), nil
}

// unmarshalFailures parses failures stored by marshalFailures.
func unmarshalFailures(data string) ([]*status.Failure, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var failures []*status.Failure
	if err := json.Unmarshal([]byte(data), &failures); err != nil {
		return nil, fmt.Errorf("unmarshal failures: %w", err)
	}
	for _, f := range failures {
		if len(f.Details) == 0 {
			f.Details = nil
		}
	}
	return failures, nil
}
