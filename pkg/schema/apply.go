package schema

// Apply merges patch into current field by field. The merge is shallow:
// nested object and array values are replaced wholesale. A patch value that
// violates its field's constraint is rejected for that field only; the
// prior value (or absence) is retained and the rest of the patch still
// applies. The rejections are reported, never escalated to a whole-patch
// abort.
//
// Fields absent from the schema pass through unvalidated; an empty schema
// validates nothing.
func Apply(current, patch map[string]any, s Schema) (map[string]any, []*ValidationError) {
	next := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		next[k] = v
	}

	var rejected []*ValidationError
	for name, value := range patch {
		if value == nil {
			// Explicit nil clears the field.
			delete(next, name)
			continue
		}
		if f, ok := s[name]; ok && f.Type != nil {
			if err := f.Type.Validate(value); err != nil {
				rejected = append(rejected, &ValidationError{
					Key:    name,
					Reason: err.Error(),
					Value:  value,
				})
				continue
			}
		}
		next[name] = value
	}
	return next, rejected
}

// ApplyDefaults fills declared defaults for absent fields, returning a new
// record. Invalid defaults are skipped; route activation must not fail on a
// bad default value.
func ApplyDefaults(current map[string]any, s Schema) map[string]any {
	next := make(map[string]any, len(current))
	for k, v := range current {
		next[k] = v
	}
	for name, f := range s {
		if f.Default == nil {
			continue
		}
		if _, present := next[name]; present {
			continue
		}
		if f.Type != nil {
			if err := f.Type.Validate(f.Default); err != nil {
				continue
			}
		}
		next[name] = f.Default
	}
	return next
}

// IsComplete reports whether every required field is present (non-nil) in
// data. Optional fields never block completion.
func IsComplete(data map[string]any, required []string) bool {
	for _, name := range required {
		if v, ok := data[name]; !ok || v == nil {
			return false
		}
	}
	return true
}
