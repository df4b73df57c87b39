package reasoning

import (
	"encoding/json"
	"fmt"
)

// Strings decodes either a JSON string array or a single string. Models are
// inconsistent about which one they return for list-valued fields.
type Strings []string

func (s *Strings) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	if one == "" {
		*s = nil
	} else {
		*s = Strings{one}
	}
	return nil
}
