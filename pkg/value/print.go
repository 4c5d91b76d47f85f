package value

import (
	"strconv"
)

// Format renders v the way spec.md §6 requires `print` to: numbers as the
// shortest round-trip decimal, booleans as true/false, nil as nil,
// strings as their raw bytes, functions as "<fn NAME>" or "<script>",
// natives as their wrapper form, classes as their bare name, instances as
// "NAME instance", and bound methods the same as the underlying function.
func Format(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObject():
		return v.AsObject().String()
	default:
		return ""
	}
}

// formatNumber mirrors C's "%.14g"-ish shortest round-trip formatting
// closely enough for scripts that only ever print integral or simple
// decimal results: Go's 'g' verb with -1 precision picks the shortest
// decimal that reparses to the same float64, which is what every
// reasonable clox port converges on for double_to_string.
func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
