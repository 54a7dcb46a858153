/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package workcal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// LoadHolidays reads a YAML holiday file of the form:
//
//	holidays:
//	  - 2026-01-01
//	  - 2026-12-25
//
// A missing path returns an empty list so deployments without a
// holiday calendar keep working.
func LoadHolidays(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read holiday file: %w", err)
	}
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse holiday file: %w", err)
	}
	return f.Holidays, nil
}
