package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
)

func newTestMasker() *Masker {
	return NewMasker(zap.NewNop())
}

func TestMaskField_Presets(t *testing.T) {
	m := newTestMasker()

	cases := []struct {
		fieldType string
		in        string
		want      string
	}{
		{"phone", "13812345678", "138****5678"},
		{"idcard", "110101199001011234", "110***********1234"},
		{"bankcard", "6222021234567890", "6222****7890"},
		{"email", "alice@example.com", "a**@example.com"},
		{"email", "a@example.com", "a**@example.com"},
		{"name", "Alexander", "A********"},
		{"address", "Moscow, Tverskaya 7, apt 12", "Moscow******"},
		{"unknown", "secret-token", "se********en"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.MaskField(tc.fieldType, tc.in), "type %s", tc.fieldType)
	}

	t.Run("too short values pass through", func(t *testing.T) {
		assert.Equal(t, "12345", m.MaskField("phone", "12345"))
		assert.Equal(t, "abcd", m.MaskField("unknown", "abcd"))
		assert.Equal(t, "X", m.MaskField("name", "X"))
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		assert.Equal(t, "", m.MaskField("phone", ""))
		assert.Equal(t, "value", m.MaskField("", "value"))
	})
}

func TestMaskContent_FreeText(t *testing.T) {
	m := newTestMasker()

	t.Run("phone and email swept from text", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"phone", "email"}}
		in := "contact: 13812345678, mail bob@corp.io"
		out := m.MaskContent(in, cfg)
		assert.Equal(t, "contact: 138****5678, mail b**@corp.io", out)
	})

	t.Run("name and address not swept from free text", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"name", "address"}}
		in := "shipping to Alexander, Moscow"
		assert.Equal(t, in, m.MaskContent(in, cfg))
	})

	t.Run("keywords replaced", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveKeywords: []string{"Project-X"}}
		out := m.MaskContent("status of Project-X is green", cfg)
		assert.Equal(t, "status of *** is green", out)
	})

	t.Run("idempotent on already masked text", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"phone"}}
		once := m.MaskContent("call 13812345678 now", cfg).(string)
		twice := m.MaskContent(once, cfg).(string)
		assert.Equal(t, once, twice)
	})
}

func TestMaskContent_Map(t *testing.T) {
	m := newTestMasker()

	t.Run("conventional field names masked", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"phone", "email", "name"}}
		in := map[string]interface{}{
			"phone": "13812345678",
			"email": "alice@example.com",
			"name":  "Alice",
			"age":   30,
		}
		out := m.MaskContent(in, cfg).(map[string]interface{})
		assert.Equal(t, "138****5678", out["phone"])
		assert.Equal(t, "a**@example.com", out["email"])
		assert.Equal(t, "A****", out["name"])
		assert.Equal(t, 30, out["age"])
	})

	t.Run("input map is not mutated", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"phone"}}
		in := map[string]interface{}{
			"phone": "13812345678",
			"owner": map[string]interface{}{"mobile": "13999998888"},
		}
		m.MaskContent(in, cfg)
		assert.Equal(t, "13812345678", in["phone"])
		assert.Equal(t, "13999998888", in["owner"].(map[string]interface{})["mobile"])
	})

	t.Run("recurses into nested maps", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveFields: []string{"bankcard"}}
		in := map[string]interface{}{
			"payment": map[string]interface{}{"cardNo": "6222021234567890"},
		}
		out := m.MaskContent(in, cfg).(map[string]interface{})
		nested := out["payment"].(map[string]interface{})
		assert.Equal(t, "6222****7890", nested["cardNo"])
	})

	t.Run("custom rules override presets", func(t *testing.T) {
		cfg := &domain.MaskConfig{
			SensitiveFields: []string{"phone"},
			MaskRules: map[string]domain.MaskRule{
				"token": {Start: 3, End: 2, MaskChar: "#"},
			},
		}
		in := map[string]interface{}{"token": "abcdefghij"}
		out := m.MaskContent(in, cfg).(map[string]interface{})
		assert.Equal(t, "abc#####ij", out["token"])
	})

	t.Run("keywords applied to all string values", func(t *testing.T) {
		cfg := &domain.MaskConfig{SensitiveKeywords: []string{"internal"}}
		in := map[string]interface{}{"note": "internal use only"}
		out := m.MaskContent(in, cfg).(map[string]interface{})
		assert.Equal(t, "*** use only", out["note"])
	})
}

func TestMaskContent_Fallbacks(t *testing.T) {
	m := newTestMasker()
	cfg := &domain.MaskConfig{SensitiveFields: []string{"phone"}}

	t.Run("nil content untouched", func(t *testing.T) {
		assert.Nil(t, m.MaskContent(nil, cfg))
	})

	t.Run("empty config returns content as is", func(t *testing.T) {
		in := map[string]interface{}{"phone": "13812345678"}
		out := m.MaskContent(in, &domain.MaskConfig{})
		assert.Equal(t, in, out)
	})

	t.Run("struct serialized and masked as map", func(t *testing.T) {
		type customer struct {
			Phone string `json:"phone"`
		}
		out := m.MaskContent(customer{Phone: "13812345678"}, cfg)
		asMap, ok := out.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "138****5678", asMap["phone"])
	})

	t.Run("unmaskable scalar passes through", func(t *testing.T) {
		assert.Equal(t, 42, m.MaskContent(42, cfg))
	})
}

func TestApplyMaskRule(t *testing.T) {
	t.Run("default mask char", func(t *testing.T) {
		assert.Equal(t, "ab****gh", applyMaskRule("abcdefgh", domain.MaskRule{Start: 2, End: 2}))
	})

	t.Run("zero end keeps nothing at tail", func(t *testing.T) {
		assert.Equal(t, "ab******", applyMaskRule("abcdefgh", domain.MaskRule{Start: 2, End: 0}))
	})

	t.Run("value shorter than window untouched", func(t *testing.T) {
		assert.Equal(t, "abc", applyMaskRule("abc", domain.MaskRule{Start: 2, End: 2}))
	})

	t.Run("negative bounds untouched", func(t *testing.T) {
		assert.Equal(t, "abcdef", applyMaskRule("abcdef", domain.MaskRule{Start: -1, End: 2}))
	})
}
