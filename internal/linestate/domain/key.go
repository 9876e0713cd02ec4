package linestate

import "strings"

// Field names a cached value of a line.
type Field string

const (
	FieldLastRawCounter   Field = "last_actual"
	FieldDailyAccumulated Field = "pcs_day"
	FieldLastReset        Field = "last_reset"
	FieldModel            Field = "LastModel"
	FieldBaselineInstant  Field = "StartRunTime"
	FieldBaselineCounter  Field = "StartActual"
)

const (
	defaultKeyPrefix = "coatline:line"
	keySeparator     = ":"
)

// Fields lists every cached field of a line in a stable order.
var Fields = []Field{
	FieldLastRawCounter,
	FieldDailyAccumulated,
	FieldLastReset,
	FieldModel,
	FieldBaselineInstant,
	FieldBaselineCounter,
}

// Key returns the cache key of a line field under the default namespace.
func Key(lineID string, field Field) string {
	return KeyWithPrefix(defaultKeyPrefix, lineID, field)
}

// KeyWithPrefix returns the cache key of a line field under prefix.
func KeyWithPrefix(prefix, lineID string, field Field) string {
	prefix = strings.TrimSuffix(prefix, keySeparator)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + keySeparator + lineID + keySeparator + string(field)
}
