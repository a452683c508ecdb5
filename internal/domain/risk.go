package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RiskLevel — уровень риска задачи. Порядок значений важен: HIGH > MEDIUM > LOW.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"    // Выполняем без подтверждения
	RiskMedium RiskLevel = "MEDIUM" // Требует подтверждения оператора
	RiskHigh   RiskLevel = "HIGH"   // Деструктивные, финансовые, необратимые действия
)

// Rank возвращает вес уровня для сравнения. Неизвестный уровень считается LOW.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// RequiresApproval — единственная точка, где решается, нужен ли HITL.
func (l RiskLevel) RequiresApproval() bool {
	return l.Rank() > RiskLow.Rank()
}

// ParseRiskLevel нормализует значение из конфига/БД ("high", " Medium ").
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskMedium:
		return RiskMedium, nil
	case RiskHigh:
		return RiskHigh, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

var ErrRuleNotFound = errors.New("risk rule not found")

// RiskRule — одна строка декларативной таблицы индикаторов (pattern, severity).
type RiskRule struct {
	ID       string    `json:"id" yaml:"id,omitempty"`
	Pattern  string    `json:"pattern" yaml:"pattern"`
	Severity RiskLevel `json:"severity" yaml:"severity"`
	// Category группирует синонимы ("purchase", "delete"), вес учитывается один раз на категорию
	Category string  `json:"category,omitempty" yaml:"category,omitempty"`
	Weight   float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Validate проверяет правило перед загрузкой в классификатор.
func (r RiskRule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("risk rule %q: empty pattern", r.ID)
	}
	if _, err := ParseRiskLevel(string(r.Severity)); err != nil {
		return fmt.Errorf("risk rule %q: %w", r.Pattern, err)
	}
	if r.Weight < 0 {
		return fmt.Errorf("risk rule %q: negative weight", r.Pattern)
	}
	return nil
}

// RiskAssessment — результат классификации. Не персистится, принадлежит вызывающему.
type RiskAssessment struct {
	Level      RiskLevel `json:"level"`
	Indicators []string  `json:"indicators"` // Сработавшие паттерны в порядке таблицы правил

	// Объяснимость для оператора
	Categories     []string `json:"categories,omitempty"`
	Confidence     float64  `json:"confidence"` // 0..100, обратная величина суммарного риска
	Recommendation string   `json:"recommendation"`
}
