package structures

import (
	"testing"

	"github.com/wavechat/gateway/internal/testutil"
)

func TestIDMarshalsAsString(t *testing.T) {
	b, err := ID(1128054073362481152).MarshalJSON()
	testutil.IsNil(t, err, "marshal")
	testutil.Assert(t, `"1128054073362481152"`, string(b), "string-encoded on the wire")

	var id ID
	testutil.IsNil(t, id.UnmarshalJSON(b), "unmarshal")
	testutil.Assert(t, ID(1128054073362481152), id, "round-trip")
}

func TestIDUnmarshalNull(t *testing.T) {
	var id ID
	testutil.IsNil(t, id.UnmarshalJSON([]byte("null")), "null accepted")
	testutil.IsTrue(t, id.IsNil(), "null maps to the nil id")
}

func TestParseIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "12x4"} {
		_, err := ParseID(s)
		testutil.IsNotNil(t, err, "garbage id rejected")
	}
}
