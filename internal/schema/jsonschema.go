package schema

// JSONSchema renders the schema as a JSON-schema object, the descriptor
// format consumed by Singer-style targets.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.columns))
	var required []string
	for _, c := range s.columns {
		props[c.Name] = jsonType(c)
		if c.Required {
			required = append(required, c.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func jsonType(c Column) map[string]any {
	nullable := func(t string) any {
		if c.Required {
			return t
		}
		return []string{t, "null"}
	}
	switch c.Type {
	case TypeTimestamp:
		return map[string]any{"type": nullable("string"), "format": "date-time"}
	case TypeInteger:
		return map[string]any{"type": nullable("integer")}
	case TypeStringArray:
		return map[string]any{
			"type":  nullable("array"),
			"items": map[string]any{"type": []string{"string", "null"}},
		}
	default:
		return map[string]any{"type": nullable("string")}
	}
}
