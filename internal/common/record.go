package common

// Field is a single named value of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is one exported document. Field order follows the source document.
type Record []Field

// Lookup returns the value of the first field named key.
func (r Record) Lookup(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in document order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}
