package records

import (
	"encoding/json"
	"time"
)

// MarshalJSON writes timestamps as RFC 3339 strings in UTC.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if ts, ok := v.(time.Time); ok {
			out[k] = ts.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}
