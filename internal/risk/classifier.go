package risk

import (
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// Слова подтверждения усиливают риск, только если задача уже рискованная
var confirmationWords = []string{"confirm", "final", "complete"}

const (
	confirmationBonus     = 0.2
	confirmationThreshold = 0.5
	confidencePerScore    = 50
)

type compiledRule struct {
	rule    domain.RiskRule
	needle  string // pattern в нижнем регистре
	groupID string // категория или сам паттерн, если категории нет
}

// Classifier — чистая функция над неизменяемой таблицей правил.
// Безопасен для конкурентного вызова без синхронизации.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier валидирует и компилирует таблицу правил. Порядок правил сохраняется
// и определяет порядок индикаторов в результате.
func NewClassifier(rules []domain.RiskRule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	seen := make(map[string]int, len(rules))

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		severity, _ := domain.ParseRiskLevel(string(r.Severity))
		r.Severity = severity
		r.Pattern = strings.TrimSpace(r.Pattern)
		r.Category = strings.TrimSpace(r.Category)

		needle := strings.ToLower(r.Pattern)
		group := strings.ToLower(r.Category)
		if group == "" {
			group = needle
		}
		cr := compiledRule{rule: r, needle: needle, groupID: group}

		// Дубликат по шаблону: остается более строгое правило, позиция первого.
		if i, dup := seen[needle]; dup {
			if stricter(r, compiled[i].rule) {
				compiled[i] = cr
			}
			continue
		}
		seen[needle] = len(compiled)
		compiled = append(compiled, cr)
	}

	return &Classifier{rules: compiled}, nil
}

func stricter(a, b domain.RiskRule) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	return a.Weight > b.Weight
}

// MustClassifier используется для встроенных таблиц, ошибка там: баг сборки.
func MustClassifier(rules []domain.RiskRule) *Classifier {
	c, err := NewClassifier(rules)
	if err != nil {
		panic(fmt.Sprintf("risk: invalid built-in rule table: %v", err))
	}
	return c
}

// Rules возвращает копию скомпилированной таблицы.
func (c *Classifier) Rules() []domain.RiskRule {
	out := make([]domain.RiskRule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.rule)
	}
	return out
}

// Classify — тотальная функция: для любой строки возвращает оценку, ошибок нет.
// HIGH перекрывает MEDIUM, MEDIUM перекрывает LOW. Правила уровня LOW только
// попадают в индикаторы и уровень не поднимают.
func (c *Classifier) Classify(description string) domain.RiskAssessment {
	text := strings.ToLower(strings.TrimSpace(description))

	a := domain.RiskAssessment{
		Level:      domain.RiskLow,
		Indicators: []string{},
	}
	if text == "" {
		a.Confidence = 100
		a.Recommendation = recommendation(domain.RiskLow)
		return a
	}

	var score float64
	counted := make(map[string]struct{})

	for _, r := range c.rules {
		if !strings.Contains(text, r.needle) {
			continue
		}
		a.Indicators = append(a.Indicators, r.rule.Pattern)
		if r.rule.Severity.Rank() > a.Level.Rank() {
			a.Level = r.rule.Severity
		}

		// Вес категории учитывается один раз, как бы много синонимов ни совпало
		if _, ok := counted[r.groupID]; ok {
			continue
		}
		counted[r.groupID] = struct{}{}
		score += r.rule.Weight
		if r.rule.Category != "" {
			a.Categories = append(a.Categories, r.rule.Category)
		}
	}

	if score > confirmationThreshold && containsAny(text, confirmationWords) {
		score += confirmationBonus
	}

	a.Confidence = confidence(score)
	a.Recommendation = recommendation(a.Level)
	return a
}

func confidence(score float64) float64 {
	v := 100 - score*confidencePerScore
	if v < 0 {
		return 0
	}
	return v
}

func recommendation(level domain.RiskLevel) string {
	switch level {
	case domain.RiskHigh:
		return "HIGH: task involves destructive, financial or irreversible operations. Approval required."
	case domain.RiskMedium:
		return "MEDIUM: task may perform sensitive operations. Approval required."
	default:
		return "LOW: no critical operations detected. Safe to execute."
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
