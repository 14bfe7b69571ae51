package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
)

// Evaluator — чистый матчер условий политики против запроса. Не имеет
// состояния, детерминирован и никогда не паникует: неизвестный оператор
// или битая регулярка считаются несовпадением (fail-closed для правила)
// и фиксируются в логе.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("evaluator")}
}

// Matches проверяет все присутствующие секции условий по схеме AND:
// urlPattern (поиск без якорей), method (равенство или "ALL"),
// bodyConditions и headerConditions. Отсутствующая секция истинна.
func (e *Evaluator) Matches(doc *domain.ConditionDoc, url, method string, headers map[string]string, body map[string]interface{}) bool {
	if doc == nil {
		return false
	}

	if doc.URLPattern != "" && !e.matchesURLPattern(url, doc.URLPattern) {
		return false
	}

	if doc.Method != "" && !strings.EqualFold(doc.Method, "ALL") && !strings.EqualFold(doc.Method, method) {
		return false
	}

	if len(doc.BodyConditions) > 0 && !e.evaluateBodyConditions(doc.BodyConditions, body) {
		return false
	}

	if len(doc.HeaderConditions) > 0 && !e.evaluateHeaderConditions(doc.HeaderConditions, headers) {
		return false
	}

	return true
}

// matchesURLPattern — поиск регулярки по URL без привязки к началу/концу.
func (e *Evaluator) matchesURLPattern(url, pattern string) bool {
	if url == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.Warn("invalid url pattern", zap.String("pattern", pattern), zap.Error(err))
		return false
	}
	return re.MatchString(url)
}

func (e *Evaluator) evaluateBodyConditions(conds []domain.FieldCondition, body map[string]interface{}) bool {
	if len(body) == 0 {
		return false
	}
	for _, c := range conds {
		if c.Field == "" || c.Operator == "" {
			continue
		}
		actual := NestedValue(body, c.Field)
		if !e.evaluateCondition(actual, c.Operator, c.Value) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateHeaderConditions(conds []domain.FieldCondition, headers map[string]string) bool {
	if len(headers) == 0 {
		return false
	}
	for _, c := range conds {
		if c.Field == "" || c.Operator == "" {
			continue
		}
		var actual interface{}
		if v, ok := headers[c.Field]; ok {
			actual = v
		}
		if !e.evaluateCondition(actual, c.Operator, c.Value) {
			return false
		}
	}
	return true
}

// NestedValue достает значение по точечному пути из вложенных map.
// Возвращает nil, если путь обрывается.
func NestedValue(m map[string]interface{}, field string) interface{} {
	if m == nil || field == "" {
		return nil
	}
	var current interface{} = m
	for _, part := range strings.Split(field, ".") {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = asMap[part]
	}
	return current
}

// evaluateCondition — один предикат. nil-значение удовлетворяет только isnull.
func (e *Evaluator) evaluateCondition(actual interface{}, operator string, expected interface{}) bool {
	if actual == nil {
		return strings.EqualFold(operator, "isnull")
	}

	switch strings.ToLower(operator) {
	case "eq", "equals":
		return compareEquals(actual, expected)
	case "ne", "notequals":
		return !compareEquals(actual, expected)
	case "gt":
		return compareNumeric(actual, expected) > 0
	case "gte", "ge":
		return compareNumeric(actual, expected) >= 0
	case "lt":
		return compareNumeric(actual, expected) < 0
	case "lte", "le":
		return compareNumeric(actual, expected) <= 0
	case "contains":
		return strings.Contains(asString(actual), asString(expected))
	case "startswith":
		return strings.HasPrefix(asString(actual), asString(expected))
	case "endswith":
		return strings.HasSuffix(asString(actual), asString(expected))
	case "matches":
		return e.matchesAnchored(asString(actual), asString(expected))
	case "in":
		return isInList(actual, expected)
	case "notin":
		return !isInList(actual, expected)
	case "isnull":
		return false // actual здесь уже не nil
	case "isnotnull":
		return true
	default:
		e.logger.Warn("unknown condition operator", zap.String("operator", operator))
		return false
	}
}

// matchesAnchored — полная регулярка по всей строке (в отличие от urlPattern).
func (e *Evaluator) matchesAnchored(value, pattern string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		e.logger.Warn("invalid regex in condition", zap.String("pattern", pattern), zap.Error(err))
		return false
	}
	return re.MatchString(value)
}

// compareEquals сравнивает числом, если обе стороны числовые, иначе строкой.
func compareEquals(actual, expected interface{}) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	an, aok := toFloat(actual)
	en, eok := toFloat(expected)
	if aok && eok {
		return an == en
	}
	return asString(actual) == asString(expected)
}

// compareNumeric: числовое сравнение с лексикографическим фолбэком,
// когда хотя бы одна сторона не приводится к числу.
func compareNumeric(actual, expected interface{}) int {
	an, aok := toFloat(actual)
	en, eok := toFloat(expected)
	if !aok || !eok {
		return strings.Compare(asString(actual), asString(expected))
	}
	switch {
	case an < en:
		return -1
	case an > en:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// Целые числа из JSON печатаем без хвоста ".0"
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func isInList(actual, expected interface{}) bool {
	if list, ok := expected.([]interface{}); ok {
		for _, item := range list {
			if compareEquals(actual, item) {
				return true
			}
		}
		return false
	}
	return compareEquals(actual, expected)
}
