package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
)

func TestEvaluator_Matches_URLAndMethod(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	t.Run("url pattern is a search, not anchored", func(t *testing.T) {
		doc := &domain.ConditionDoc{URLPattern: "/payments/"}
		assert.True(t, e.Matches(doc, "https://api.bank.com/payments/transfer", "POST", nil, nil))
		assert.False(t, e.Matches(doc, "https://api.bank.com/accounts", "POST", nil, nil))
	})

	t.Run("invalid regex never matches", func(t *testing.T) {
		doc := &domain.ConditionDoc{URLPattern: "[unclosed"}
		assert.False(t, e.Matches(doc, "https://api.bank.com/[unclosed", "GET", nil, nil))
	})

	t.Run("method ALL matches everything", func(t *testing.T) {
		doc := &domain.ConditionDoc{Method: "ALL"}
		assert.True(t, e.Matches(doc, "/x", "GET", nil, nil))
		assert.True(t, e.Matches(doc, "/x", "DELETE", nil, nil))
	})

	t.Run("method compare is case insensitive", func(t *testing.T) {
		doc := &domain.ConditionDoc{Method: "post"}
		assert.True(t, e.Matches(doc, "/x", "POST", nil, nil))
		assert.False(t, e.Matches(doc, "/x", "GET", nil, nil))
	})

	t.Run("empty doc matches anything", func(t *testing.T) {
		assert.True(t, e.Matches(&domain.ConditionDoc{}, "/any", "PUT", nil, nil))
	})

	t.Run("nil doc never matches", func(t *testing.T) {
		assert.False(t, e.Matches(nil, "/any", "GET", nil, nil))
	})
}

func TestEvaluator_BodyConditions(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	body := map[string]interface{}{
		"amount": float64(15000),
		"user": map[string]interface{}{
			"account": map[string]interface{}{"id": "acc-7"},
			"vip":     true,
		},
		"tags": "prod,billing",
	}

	match := func(conds ...domain.FieldCondition) bool {
		return e.Matches(&domain.ConditionDoc{BodyConditions: conds}, "/x", "POST", nil, body)
	}

	t.Run("gt on numeric field", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "amount", Operator: "gt", Value: 10000}))
		assert.False(t, match(domain.FieldCondition{Field: "amount", Operator: "gt", Value: 20000}))
	})

	t.Run("gt with string threshold", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "amount", Operator: "gt", Value: "10000"}))
	})

	t.Run("eq on nested dotted path", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "user.account.id", Operator: "eq", Value: "acc-7"}))
		assert.False(t, match(domain.FieldCondition{Field: "user.account.id", Operator: "eq", Value: "acc-8"}))
	})

	t.Run("broken path satisfies only isnull", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "user.missing.deep", Operator: "isnull"}))
		assert.False(t, match(domain.FieldCondition{Field: "user.missing.deep", Operator: "eq", Value: "x"}))
	})

	t.Run("contains and startswith", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "tags", Operator: "contains", Value: "billing"}))
		assert.True(t, match(domain.FieldCondition{Field: "tags", Operator: "startswith", Value: "prod"}))
		assert.False(t, match(domain.FieldCondition{Field: "tags", Operator: "endswith", Value: "prod"}))
	})

	t.Run("in list", func(t *testing.T) {
		list := []interface{}{"acc-1", "acc-7"}
		assert.True(t, match(domain.FieldCondition{Field: "user.account.id", Operator: "in", Value: list}))
		assert.False(t, match(domain.FieldCondition{Field: "user.account.id", Operator: "notin", Value: list}))
	})

	t.Run("matches is anchored", func(t *testing.T) {
		assert.True(t, match(domain.FieldCondition{Field: "user.account.id", Operator: "matches", Value: `acc-\d+`}))
		assert.False(t, match(domain.FieldCondition{Field: "tags", Operator: "matches", Value: "prod"}))
	})

	t.Run("unknown operator fails closed", func(t *testing.T) {
		assert.False(t, match(domain.FieldCondition{Field: "amount", Operator: "between", Value: 5}))
	})

	t.Run("all conditions must hold", func(t *testing.T) {
		assert.False(t, match(
			domain.FieldCondition{Field: "amount", Operator: "gt", Value: 10000},
			domain.FieldCondition{Field: "user.vip", Operator: "eq", Value: false},
		))
	})

	t.Run("empty body fails any body condition", func(t *testing.T) {
		doc := &domain.ConditionDoc{BodyConditions: []domain.FieldCondition{
			{Field: "amount", Operator: "isnull"},
		}}
		assert.False(t, e.Matches(doc, "/x", "POST", nil, nil))
	})
}

func TestEvaluator_HeaderConditions(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	headers := map[string]string{"X-Env": "production"}

	doc := &domain.ConditionDoc{HeaderConditions: []domain.FieldCondition{
		{Field: "X-Env", Operator: "eq", Value: "production"},
	}}
	assert.True(t, e.Matches(doc, "/x", "GET", headers, nil))

	doc.HeaderConditions[0].Value = "staging"
	assert.False(t, e.Matches(doc, "/x", "GET", headers, nil))
}

func TestNestedValue(t *testing.T) {
	m := map[string]interface{}{
		"a": map[string]interface{}{"b": map[string]interface{}{"c": 42}},
	}
	assert.Equal(t, 42, NestedValue(m, "a.b.c"))
	assert.Nil(t, NestedValue(m, "a.b.c.d"))
	assert.Nil(t, NestedValue(m, "a.x"))
	assert.Nil(t, NestedValue(nil, "a"))
}
