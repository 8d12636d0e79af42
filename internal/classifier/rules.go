package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile - CLASSIFIER_RULES_FILE 형식
//
//	rules:
//	  - name: payment-gateway
//	    patterns: ["stripe", "payment declined"]
//	    severity: critical
//	    kind: transient_infra
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules - YAML 규칙 파일 로드. path가 비었거나 파일이 없으면 빈 목록
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read classifier rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules - YAML 바이트에서 규칙 파싱. severity/kind가 모두 없는 규칙은 에러
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse classifier rules: %w", err)
	}
	for i, r := range f.Rules {
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %d (%s): patterns are required", i, r.Name)
		}
		if r.Severity != "" && !r.Severity.Valid() {
			return nil, fmt.Errorf("rule %d (%s): invalid severity %q", i, r.Name, r.Severity)
		}
		if !r.Severity.Valid() && r.Kind == "" {
			return nil, fmt.Errorf("rule %d (%s): severity or kind is required", i, r.Name)
		}
	}
	return f.Rules, nil
}
