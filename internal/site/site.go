// Package site loads the static "about me" content served alongside
// repository data.
package site

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadThesis reads thesis metadata from a YAML file. A missing file
// yields an empty document.
func LoadThesis(path string) (map[string]any, error) {
	return loadYAML(path)
}

// LoadProfile reads profile data from a YAML file. When the document
// carries a birth_date (YYYY-MM-DD), the {age} placeholder in the
// about text is replaced with the computed age.
func LoadProfile(path string) (map[string]any, error) {
	data, err := loadYAML(path)
	if err != nil {
		return nil, err
	}

	birth, ok := data["birth_date"].(string)
	if !ok {
		return data, nil
	}
	about, ok := data["about"].(string)
	if !ok {
		return data, nil
	}

	age, err := ageAt(birth, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid birth_date: %w", err)
	}
	data["about"] = strings.ReplaceAll(about, "{age}", strconv.Itoa(age))
	return data, nil
}

func loadYAML(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// ageAt computes full years elapsed since a YYYY-MM-DD birth date.
func ageAt(birth string, now time.Time) (int, error) {
	born, err := time.Parse("2006-01-02", birth)
	if err != nil {
		return 0, err
	}

	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, nil
}
