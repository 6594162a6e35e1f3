// Copyright 2026 rtlforge Authors
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

package workspace

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"rtlforge/internal/common"
)

// MaxIPDepth bounds how many IP references may be followed in a chain.
const MaxIPDepth = 3

// IPManifest is the body of an IP reference entry.
type IPManifest struct {
	Repository string `yaml:"repository"`
	// Entry is the root of the referenced subtree; empty means the
	// repository root.
	Entry string `yaml:"entry,omitempty"`
}

// ParseIPManifest decodes and validates an IP reference body.
func ParseIPManifest(body []byte) (*IPManifest, error) {
	var m IPManifest
	if err := yaml.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidIPReference, err)
	}
	if m.Repository == "" {
		return nil, fmt.Errorf("missing repository: %w", common.ErrInvalidIPReference)
	}
	return &m, nil
}

// Marshal encodes the manifest.
func (m *IPManifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// ipDirName is the directory an IP reference titled title expands into.
func ipDirName(title string) string {
	if name := strings.TrimSuffix(title, ".ip"); name != "" {
		return name
	}
	return title
}
