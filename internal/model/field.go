package model

// Field names a contact attribute that providers can supply.
type Field string

const (
	FieldName       Field = "name"
	FieldTitle      Field = "title"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
	FieldProfileURL Field = "profile_url"
)

// AllFields lists every contact field in canonical order.
var AllFields = []Field{FieldName, FieldTitle, FieldEmail, FieldPhone, FieldProfileURL}

// ParseField returns the Field for s and whether it is known.
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}
