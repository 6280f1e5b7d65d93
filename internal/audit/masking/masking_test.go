package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
	assert.Equal(t, "inv_****cdef", MaskSecret("inv_0123456789abcdef"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j****@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "****", MaskEmail("@x"))
}

func TestMaskJSONNested(t *testing.T) {
	out := MaskJSON(map[string]any{
		"token": "0123456789",
		"meta":  map[string]any{"key": "abcdefgh"},
		"count": 3,
		"":      "skip",
	})
	assert.Equal(t, "****6789", out["token"])
	assert.Equal(t, map[string]any{"key": "****efgh"}, out["meta"])
	assert.Equal(t, 3, out["count"])
	assert.Len(t, out, 3)
}
