package mask

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xela07ax/agentguard-core/internal/domain"
	"go.uber.org/zap"
)

// Предкомпилированные паттерны для поиска чувствительных данных в тексте
var (
	phonePattern    = regexp.MustCompile(`1[3-9]\d{9}`)
	idCardPattern   = regexp.MustCompile(`\d{17}[\dXx]`)
	bankCardPattern = regexp.MustCompile(`\d{16,19}`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// possibleFieldNames — вероятные имена полей для каждого типа данных.
// Маскер работает по ответам чужих API и не знает их схем, поэтому
// ищет по конвенциональным именам.
var possibleFieldNames = map[string][]string{
	"phone":    {"phone", "mobile", "tel", "telephone", "phoneNumber", "mobilePhone"},
	"idcard":   {"idCard", "idNumber", "identityCard", "idNo", "certificateNo"},
	"bankcard": {"bankCard", "cardNo", "bankCardNo", "accountNo", "cardNumber"},
	"email":    {"email", "mail", "emailAddress"},
	"name":     {"name", "realName", "userName", "fullName", "customerName"},
	"address":  {"address", "addr", "homeAddress", "workAddress", "detailAddress"},
}

// Masker применяет MaskConfig к содержимому ответа. Никогда не
// возвращает ошибку: немаскируемое содержимое отдается как есть,
// пропустить данные важнее, чем упасть на их очистке.
type Masker struct {
	logger *zap.Logger
}

func NewMasker(logger *zap.Logger) *Masker {
	return &Masker{logger: logger.Named("masker")}
}

// MaskContent — главная точка входа. Строки маскируются regex-проходом,
// map — по именам полей с рекурсией в дочерние map. Прочие типы
// возвращаются нетронутыми. Операция идемпотентна: повторный прогон
// уже замаскированного содержимого его не меняет.
func (m *Masker) MaskContent(content interface{}, cfg *domain.MaskConfig) interface{} {
	if content == nil || cfg.IsEmpty() {
		return content
	}

	switch c := content.(type) {
	case string:
		return m.maskString(c, cfg)
	case map[string]interface{}:
		return m.maskMap(c, cfg)
	}

	// Последний шанс: значение сериализуется в JSON-объект — маскируем
	// как map и отдаем обратно map-ом
	if raw, err := json.Marshal(content); err == nil {
		var asMap map[string]interface{}
		if json.Unmarshal(raw, &asMap) == nil {
			return m.maskMap(asMap, cfg)
		}
	}
	return content
}

// MaskField маскирует одно значение по типу данных.
func (m *Masker) MaskField(fieldType, value string) string {
	if value == "" || fieldType == "" {
		return value
	}

	switch strings.ToLower(fieldType) {
	case "phone":
		return maskPhone(value)
	case "idcard":
		return maskIDCard(value)
	case "bankcard":
		return maskBankCard(value)
	case "email":
		return maskEmail(value)
	case "name":
		return maskName(value)
	case "address":
		return maskAddress(value)
	default:
		return maskDefault(value)
	}
}

// MaskKeywords заменяет каждое вхождение ключевых слов на "***".
func (m *Masker) MaskKeywords(text string, keywords []string) string {
	if text == "" || len(keywords) == 0 {
		return text
	}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			text = strings.ReplaceAll(text, kw, "***")
		}
	}
	return text
}

func (m *Masker) maskString(content string, cfg *domain.MaskConfig) string {
	result := content
	for _, fieldType := range cfg.SensitiveFields {
		result = maskFieldInText(result, fieldType)
	}
	return m.MaskKeywords(result, cfg.SensitiveKeywords)
}

// maskMap возвращает новую map: вход не мутируется, исходный ответ
// остается доступным аудиту в первозданном виде.
func (m *Masker) maskMap(content map[string]interface{}, cfg *domain.MaskConfig) map[string]interface{} {
	result := make(map[string]interface{}, len(content))
	for k, v := range content {
		result[k] = v
	}

	for _, fieldType := range cfg.SensitiveFields {
		m.maskFieldInMap(result, fieldType)
	}

	// Кастомные правила перекрывают пресеты: применяются после
	for fieldName, rule := range cfg.MaskRules {
		if s, ok := result[fieldName].(string); ok {
			result[fieldName] = applyMaskRule(s, rule)
		}
	}

	if len(cfg.SensitiveKeywords) > 0 {
		for k, v := range result {
			if s, ok := v.(string); ok {
				result[k] = m.MaskKeywords(s, cfg.SensitiveKeywords)
			}
		}
	}

	return result
}

// maskFieldInMap ищет вероятные имена полей данного типа и маскирует
// их значения, рекурсивно спускаясь во вложенные map.
func (m *Masker) maskFieldInMap(data map[string]interface{}, fieldType string) {
	for _, fieldName := range possibleFieldNames[strings.ToLower(fieldType)] {
		if s, ok := data[fieldName].(string); ok {
			data[fieldName] = m.MaskField(fieldType, s)
		}
	}

	for k, v := range data {
		if nested, ok := v.(map[string]interface{}); ok {
			// Копия, чтобы не трогать вложенность исходного документа
			child := make(map[string]interface{}, len(nested))
			for nk, nv := range nested {
				child[nk] = nv
			}
			m.maskFieldInMap(child, fieldType)
			data[k] = child
		}
	}
}

// maskFieldInText — regex-проход по свободному тексту. Типы name и
// address в тексте не ищутся: без схемы их не отличить от обычных слов.
func maskFieldInText(text, fieldType string) string {
	if text == "" {
		return text
	}
	switch strings.ToLower(fieldType) {
	case "phone":
		return phonePattern.ReplaceAllStringFunc(text, maskPhone)
	case "idcard":
		return idCardPattern.ReplaceAllStringFunc(text, maskIDCard)
	case "bankcard":
		return bankCardPattern.ReplaceAllStringFunc(text, maskBankCard)
	case "email":
		return emailPattern.ReplaceAllStringFunc(text, maskEmail)
	default:
		return text
	}
}

// ==================== Пресеты ====================

// maskPhone: 138****1234 (первые 3 и последние 4)
func maskPhone(phone string) string {
	r := []rune(phone)
	if len(r) < 7 {
		return phone
	}
	return string(r[:3]) + "****" + string(r[len(r)-4:])
}

// maskIDCard: 110***********1234 (первые 3 и последние 4, середина по длине)
func maskIDCard(idCard string) string {
	r := []rune(idCard)
	if len(r) < 7 {
		return idCard
	}
	return string(r[:3]) + strings.Repeat("*", len(r)-7) + string(r[len(r)-4:])
}

// maskBankCard: 6222****1234 (первые 4 и последние 4)
func maskBankCard(bankCard string) string {
	r := []rune(bankCard)
	if len(r) < 8 {
		return bankCard
	}
	return string(r[:4]) + "****" + string(r[len(r)-4:])
}

// maskEmail: a**@example.com (первый символ локальной части)
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local := []rune(email[:at])
	domainPart := email[at:]
	if len(local) <= 1 {
		return string(local) + "**" + domainPart
	}
	return string(local[:1]) + "**" + domainPart
}

// maskName: первый символ остается, остальные закрываются
func maskName(name string) string {
	r := []rune(name)
	if len(r) <= 1 {
		return name
	}
	return string(r[:1]) + strings.Repeat("*", len(r)-1)
}

// maskAddress: первые 6 символов и до 6 звездочек
func maskAddress(address string) string {
	r := []rune(address)
	if len(r) <= 6 {
		return address
	}
	stars := len(r) - 6
	if stars > 6 {
		stars = 6
	}
	return string(r[:6]) + strings.Repeat("*", stars)
}

// maskDefault: по 2 символа с обеих сторон
func maskDefault(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return value
	}
	return string(r[:2]) + strings.Repeat("*", len(r)-4) + string(r[len(r)-2:])
}

// applyMaskRule закрывает середину значения, оставляя start символов в
// начале и end в конце. Слишком короткое значение не трогается.
func applyMaskRule(value string, rule domain.MaskRule) string {
	r := []rune(value)
	if len(r) <= rule.Start+rule.End || rule.Start < 0 || rule.End < 0 {
		return value
	}

	maskChar := rule.MaskChar
	if maskChar == "" {
		maskChar = "*"
	}

	var b strings.Builder
	b.WriteString(string(r[:rule.Start]))
	b.WriteString(strings.Repeat(maskChar, len(r)-rule.Start-rule.End))
	if rule.End > 0 {
		b.WriteString(string(r[len(r)-rule.End:]))
	}
	return b.String()
}
