package schema

// JSONSchema renders the schema (restricted to the given fields, or all
// fields when none are named) as a JSON-Schema object suitable for
// provider-side constrained extraction.
func (s Schema) JSONSchema(fields ...string) map[string]any {
	names := fields
	if len(names) == 0 {
		names = make([]string, 0, len(s))
		for name := range s {
			names = append(names, name)
		}
	}

	properties := make(map[string]any, len(names))
	for _, name := range names {
		f, ok := s[name]
		if !ok || f.Type == nil {
			properties[name] = map[string]any{}
			continue
		}
		properties[name] = typeSchema(f.Type)
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func typeSchema(t Type) map[string]any {
	switch v := t.(type) {
	case *StringType:
		return map[string]any{"type": "string"}
	case *IntType:
		return map[string]any{"type": "integer"}
	case *NumberType:
		out := map[string]any{"type": "number"}
		if v.Min != nil {
			out["minimum"] = *v.Min
		}
		if v.Max != nil {
			out["maximum"] = *v.Max
		}
		return out
	case *BoolType:
		return map[string]any{"type": "boolean"}
	case *EnumType:
		values := make([]any, len(v.Values))
		for i, s := range v.Values {
			values[i] = s
		}
		return map[string]any{"type": "string", "enum": values}
	case *ObjectType:
		return map[string]any{"type": "object"}
	case *SliceType:
		return map[string]any{"type": "array", "items": typeSchema(v.elemType)}
	default:
		return map[string]any{"description": t.Name()}
	}
}
