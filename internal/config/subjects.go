package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

type subjectCatalog struct {
	Subjects []domain.Subject `yaml:"subjects"`
}

// DefaultSubjects is the built-in seed catalog used when no file is configured.
func DefaultSubjects() []domain.Subject {
	return []domain.Subject{
		{Code: "CIT 417", Name: "CIT 417: Data Driven Websites"},
		{Code: "CIR 405", Name: "CIR 405: Distributed Systems"},
		{Code: "CIT 423", Name: "CIT 423: IT Project Management"},
		{Code: "BBE 401", Name: "BBE 401: Entrepreneurship and Small Business Management"},
		{Code: "CIR 401", Name: "CIR 401: Management Information Systems"},
		{Code: "CIT 421", Name: "CIT 421: Information Technology and Development"},
	}
}

// LoadSubjects reads the YAML catalog at path, or returns the defaults when
// path is empty.
func LoadSubjects(path string) ([]domain.Subject, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSubjects(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("subjects: read %s: %w", path, err)
	}
	subjects, err := ParseSubjects(data)
	if err != nil {
		return nil, fmt.Errorf("subjects: %s: %w", path, err)
	}
	return subjects, nil
}

func ParseSubjects(data []byte) ([]domain.Subject, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	var catalog subjectCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(catalog.Subjects))
	out := make([]domain.Subject, 0, len(catalog.Subjects))
	for i, s := range catalog.Subjects {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			return nil, fmt.Errorf("subject %d: code is required", i)
		}
		key := strings.ToUpper(code)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("subject %d: duplicate code %q", i, code)
		}
		seen[key] = struct{}{}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = code
		}
		out = append(out, domain.Subject{Code: code, Name: name})
	}
	return out, nil
}
