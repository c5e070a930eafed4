package structures

import (
	"strconv"

	"github.com/wavechat/gateway/internal/errors"
)

// ID is a snowflake identifier. It marshals to a JSON string because the
// full 64-bit range does not survive a trip through a JS number.
type ID int64

const NilID ID = 0

func (i ID) IsNil() bool {
	return i == NilID
}

func (i ID) String() string {
	return strconv.FormatInt(int64(i), 10)
}

func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return NilID, errors.ErrBadID
	}

	return ID(v), nil
}

func (i ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.String() + `"`), nil
}

func (i *ID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*i = NilID
		return nil
	}

	v, err := ParseID(s)
	if err != nil {
		return err
	}

	*i = v

	return nil
}
