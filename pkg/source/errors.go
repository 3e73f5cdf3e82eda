package source

import "fmt"

// UnmappedCategoryError is a configuration error: a line item's category key
// has no entry in the supplied account mapping. It fails the run at the
// point of lookup rather than silently dropping the item or falling back to a
// placeholder.
type UnmappedCategoryError struct {
	Source   string
	Category string
}

func (e *UnmappedCategoryError) Error() string {
	return fmt.Sprintf("%s: no account mapped for category %q", e.Source, e.Category)
}

// UnrecognizedRecordError is a fatal parse error: a record carries an enum
// value the extractor does not know. An unrecognized value likely indicates
// an upstream schema change that needs code changes, not silent data loss,
// so the run stops.
type UnrecognizedRecordError struct {
	Source string
	Kind   string
	Value  string
}

func (e *UnrecognizedRecordError) Error() string {
	return fmt.Sprintf("%s: unrecognized %s %q", e.Source, e.Kind, e.Value)
}
