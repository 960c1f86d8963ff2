package domain

import (
	"bytes"
	"encoding/json"
)

// Profile field keys, in declaration order.
const (
	FieldEmail     = "email"
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldAddress   = "address"
	FieldRailcard  = "railcard"
	FieldPhotocard = "photocard"
)

// UserInfoFieldNames lists the persisted profile keys in declaration order.
// It must stay in step with the UserInfo struct and its accessors below.
var UserInfoFieldNames = []string{
	FieldEmail,
	FieldFirstName,
	FieldLastName,
	FieldAddress,
	FieldRailcard,
	FieldPhotocard,
}

// UserInfo is the backend-agnostic profile of an account holder.
// It is a value type; compare with ==.
type UserInfo struct {
	Email     string
	FirstName string
	LastName  string
	Address   string
	Railcard  string
	Photocard string
}

// NewUserInfo builds the initial profile written on account creation.
func NewUserInfo(email, firstName, lastName string) UserInfo {
	return UserInfo{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}
}

// UserInfoFromMap reconstructs a profile from a stored key/value tree.
// Every field defaults to "" when it is absent or not a string.
func UserInfoFromMap(data map[string]any) UserInfo {
	str := func(key string) string {
		if s, ok := data[key].(string); ok {
			return s
		}
		return ""
	}

	return UserInfo{
		Email:     str(FieldEmail),
		FirstName: str(FieldFirstName),
		LastName:  str(FieldLastName),
		Address:   str(FieldAddress),
		Railcard:  str(FieldRailcard),
		Photocard: str(FieldPhotocard),
	}
}

// UserInfoFromValue reconstructs a profile from whatever a data store returned.
// Anything that is not a string-keyed map yields the empty profile.
func UserInfoFromValue(value any) UserInfo {
	switch v := value.(type) {
	case map[string]any:
		return UserInfoFromMap(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return UserInfoFromMap(m)
	default:
		return UserInfo{}
	}
}

// value returns the field stored under key.
func (u UserInfo) value(key string) string {
	switch key {
	case FieldEmail:
		return u.Email
	case FieldFirstName:
		return u.FirstName
	case FieldLastName:
		return u.LastName
	case FieldAddress:
		return u.Address
	case FieldRailcard:
		return u.Railcard
	case FieldPhotocard:
		return u.Photocard
	}
	return ""
}

// Map returns the unordered field map written to data stores.
func (u UserInfo) Map() map[string]any {
	m := make(map[string]any, len(UserInfoFieldNames))
	for _, key := range UserInfoFieldNames {
		m[key] = u.value(key)
	}
	return m
}

// Field is one key/value pair of an ordered profile view.
type Field struct {
	Key   string
	Value string
}

// OrderedFieldMap is an insertion-ordered field list. It marshals to a JSON
// object whose keys keep their order.
type OrderedFieldMap []Field

// OrderedFields returns the profile in declaration order.
func (u UserInfo) OrderedFields() OrderedFieldMap {
	fields := make(OrderedFieldMap, 0, len(UserInfoFieldNames))
	for _, key := range UserInfoFieldNames {
		fields = append(fields, Field{Key: key, Value: u.value(key)})
	}
	return fields
}

// Get returns the value stored under key.
func (m OrderedFieldMap) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Keys returns the keys in order.
func (m OrderedFieldMap) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

func (m OrderedFieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
