package demand

// Schema is an ordered, read-only list of feature names.
type Schema struct {
	names []string
}

// NewSchema copies names into a schema.
func NewSchema(names []string) Schema {
	return Schema{names: append([]string(nil), names...)}
}

func (s Schema) Len() int          { return len(s.names) }
func (s Schema) Name(i int) string { return s.names[i] }
func (s Schema) Names() []string   { return append([]string(nil), s.names...) }

// Equal reports whether both schemas list the same names in the same order.
func (s Schema) Equal(other Schema) bool {
	return s.firstMismatch(other) < 0 && len(s.names) == len(other.names)
}

// firstMismatch returns the first index where the names differ, or -1.
// Length differences are not reported here.
func (s Schema) firstMismatch(other Schema) int {
	n := len(s.names)
	if len(other.names) < n {
		n = len(other.names)
	}
	if n > 0 && &s.names[0] == &other.names[0] {
		return -1
	}
	for i := 0; i < n; i++ {
		if s.names[i] != other.names[i] {
			return i
		}
	}
	return -1
}

// FeatureVector is a standardized model input aligned to a schema.
type FeatureVector struct {
	Schema Schema
	Values []float64
}
