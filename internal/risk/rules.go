package risk

import "github.com/xela07ax/spaceai-taskgate/internal/domain"

type ruleGroup struct {
	category string
	severity domain.RiskLevel
	weight   float64
	patterns []string
}

// Встроенная таблица индикаторов. Используется, когда ни файл правил, ни БД не заданы.
var defaultGroups = []ruleGroup{
	{"purchase", domain.RiskHigh, 1.0, []string{
		"buy", "purchase", "complete order", "place order", "confirm purchase",
		"complete checkout", "pay now", "submit payment", "finalize order", "complete payment",
	}},
	{"checkout", domain.RiskHigh, 0.9, []string{
		"checkout", "proceed to checkout", "go to checkout", "click checkout", "billing", "payment details",
	}},
	{"delete", domain.RiskHigh, 0.95, []string{
		"delete", "remove account", "close account", "cancel subscription", "terminate",
		"deactivate account", "permanently delete", "erase", "format drive",
	}},
	{"payment", domain.RiskHigh, 1.0, []string{
		"enter card", "credit card", "debit card", "card number", "cvv", "card details",
		"payment method", "add payment", "enter payment",
	}},
	{"transfer", domain.RiskHigh, 1.0, []string{
		"transfer money", "send money", "wire transfer", "send payment", "transfer funds",
	}},
	{"submit_form", domain.RiskMedium, 0.6, []string{
		"submit form", "send form", "submit application", "submit order", "submit request",
	}},
	{"download_install", domain.RiskMedium, 0.5, []string{
		"download", "install", "save file",
	}},
	// Информационные индикаторы: видны оператору, уровень не поднимают
	{"login", domain.RiskLow, 0.3, []string{"login", "sign in", "log in"}},
	{"register", domain.RiskLow, 0.3, []string{"register", "sign up", "create account"}},
	{"modify", domain.RiskLow, 0.3, []string{"edit", "update", "change", "modify"}},
}

// DefaultRules разворачивает встроенные группы в плоскую таблицу (pattern, severity).
func DefaultRules() []domain.RiskRule {
	var rules []domain.RiskRule
	for _, g := range defaultGroups {
		for _, p := range g.patterns {
			rules = append(rules, domain.RiskRule{
				Pattern:  p,
				Severity: g.severity,
				Category: g.category,
				Weight:   g.weight,
			})
		}
	}
	return rules
}

// Default — классификатор на встроенной таблице.
func Default() *Classifier {
	return MustClassifier(DefaultRules())
}
