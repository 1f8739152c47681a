/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package assign

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// aliasFile is the on-disk shape of a track alias table. The aliases section maps a
// submission track name to the reviewer preference track name it should count as.
type aliasFile struct {
	Aliases map[string]string `json:"aliases"`
}

// LoadAliases reads a track alias table from a YAML file. A file with a top-level
// aliases section and a bare mapping are both accepted.
func LoadAliases(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading track aliases, %w", err)
	}
	return ParseAliases(raw)
}

// ParseAliases parses a YAML track alias table.
func ParseAliases(raw []byte) (map[string]string, error) {
	var file aliasFile
	if err := yaml.UnmarshalStrict(raw, &file); err == nil && file.Aliases != nil {
		return file.Aliases, nil
	}
	var bare map[string]string
	if err := yaml.UnmarshalStrict(raw, &bare); err != nil {
		return nil, fmt.Errorf("parsing track aliases, %w", err)
	}
	return bare, nil
}
