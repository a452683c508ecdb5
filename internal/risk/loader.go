package risk

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"gopkg.in/yaml.v3"
)

// ruleFile — формат YAML-файла с таблицей правил:
//
//	rules:
//	  - pattern: delete
//	    severity: HIGH
//	    category: delete
//	    weight: 0.95
type ruleFile struct {
	Rules []domain.RiskRule `yaml:"rules"`
}

// LoadRulesFile читает таблицу правил из YAML. Пустая таблица: ошибка:
// классификатор без правил молча пропускал бы всё как LOW.
func LoadRulesFile(path string) ([]domain.RiskRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("risk: read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]domain.RiskRule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("risk: decode rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("risk: rules file contains no rules")
	}
	for i, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("risk: rule #%d: %w", i, err)
		}
	}
	return f.Rules, nil
}
