// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package swarmconfig loads YAML configuration files into typed structs,
// validating them with struct tags and supporting "extends" inheritance
// (followed through any number of parent files, with cycles rejected) so a
// deployment-specific file can layer small overrides on top of a common base.
package swarmconfig

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// base is the subset of fields every config file may declare to chain to
// a parent file whose values are loaded first and then overridden.
type base struct {
	Extends string `yaml:"extends"`
}

// Load reads the YAML file at filename into dst, resolving any "extends"
// chain (parent files are resolved relative to filename's directory) and
// validating the final struct with the `validate` tags on dst.
func Load(filename string, dst interface{}) error {
	if err := load(filename, dst, make(map[string]bool)); err != nil {
		return fmt.Errorf("load config: %s", err)
	}
	if err := validator.Validate(dst); err != nil {
		return fmt.Errorf("validate config: %s", err)
	}
	return nil
}

func load(filename string, dst interface{}, seen map[string]bool) error {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return fmt.Errorf("resolve %s: %s", filename, err)
	}
	if seen[abs] {
		return fmt.Errorf("circular extends chain at %s", abs)
	}
	seen[abs] = true

	b, err := ioutil.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %s", abs, err)
	}

	var parent base
	if err := yaml.Unmarshal(b, &parent); err != nil {
		return fmt.Errorf("parse %s: %s", abs, err)
	}
	if parent.Extends != "" {
		// extends is resolved relative to the directory of the file that
		// declares it, not the process cwd, so a chain of configs can be
		// moved as a unit.
		extendsPath := parent.Extends
		if !filepath.IsAbs(extendsPath) {
			extendsPath = filepath.Join(filepath.Dir(abs), extendsPath)
		}
		if err := load(extendsPath, dst, seen); err != nil {
			return err
		}
	}
	if err := yaml.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("parse %s: %s", abs, err)
	}
	return nil
}
