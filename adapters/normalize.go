package adapters

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/badoux/checkmail"
)

// UnknownName is used when a payload carries no usable name field
const UnknownName = "Unknown"

// ResolveName prefers a full name, then first+last, then UnknownName
func ResolveName(fullName, firstName, lastName string) string {
	if name := strings.TrimSpace(fullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName)); name != "" {
		return name
	}
	return UnknownName
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeEmail lowercases and trims. ok is false when the address is not well formed.
func NormalizeEmail(s string) (email string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(s))
	if email == "" {
		return "", true
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", false
	}
	return email, true
}

// contactFields accumulates the recognised fields shared by every platform
type contactFields struct {
	fullName  string
	firstName string
	lastName  string
	email     string
	phone     string
}

// apply fills the canonical name/email/phone and records anything rejected in metadata
func (f contactFields) apply(metadata map[string]any) (name, email, phone string) {
	name = ResolveName(f.fullName, f.firstName, f.lastName)

	email, ok := NormalizeEmail(f.email)
	if !ok {
		metadata["invalid_email"] = f.email
	}

	phone = NormalizePhone(f.phone)
	return name, email, phone
}

// fillFrom copies the non-empty fields of other into the empty fields of f
func (f *contactFields) fillFrom(other contactFields) {
	if f.fullName == "" {
		f.fullName = other.fullName
	}
	if f.firstName == "" {
		f.firstName = other.firstName
	}
	if f.lastName == "" {
		f.lastName = other.lastName
	}
	if f.email == "" {
		f.email = other.email
	}
	if f.phone == "" {
		f.phone = other.phone
	}
}

// fieldKey folds "First Name", "first_name", "FIRST_NAME" and "firstName" to "firstname"
func fieldKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// assign stores value into the matching contact field. It reports false for unrecognised keys.
func (f *contactFields) assign(key, value string) bool {
	switch fieldKey(key) {
	case "fullname", "name":
		f.fullName = value
	case "firstname", "givenname":
		f.firstName = value
	case "lastname", "familyname", "surname":
		f.lastName = value
	case "email", "emailaddress", "workemail":
		f.email = value
	case "phone", "phonenumber", "mobilenumber", "mobile", "workphone":
		f.phone = value
	default:
		return false
	}
	return true
}

// flexString accepts JSON strings, numbers and null for identifier fields
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	if trimmed[0] == '"' {
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

func (s flexString) String() string {
	return string(s)
}

// unknownFields decodes raw as an object and returns every key not listed in known.
// Values keep their JSON shape; nil means nothing was left over.
func unknownFields(raw []byte, known ...string) (map[string]any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, key := range known {
		delete(fields, key)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	extra := make(map[string]any, len(fields))
	for key, value := range fields {
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, err
		}
		extra[key] = decoded
	}
	return extra, nil
}
