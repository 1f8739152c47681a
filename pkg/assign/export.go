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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Filename returns the conventional artifact name for an assignment produced on the
// given day, assignments_YYYYMMDD.json.
func Filename(t time.Time) string {
	return fmt.Sprintf("assignments_%s.json", t.Format("20060102"))
}

// Marshal renders an assignment as the upload document, a JSON array of
// {"email": ..., "proposals": [...]} objects.
func Marshal(assignments []ReviewerAssignment) ([]byte, error) {
	return json.MarshalIndent(assignments, "", "  ")
}

// Unmarshal parses an assignment document back into memory.
func Unmarshal(raw []byte) ([]ReviewerAssignment, error) {
	var assignments []ReviewerAssignment
	if err := json.Unmarshal(raw, &assignments); err != nil {
		return nil, fmt.Errorf("parsing assignment document, %w", err)
	}
	return assignments, nil
}

// Save writes the assignment document into dir under the conventional dated name and
// returns the full path.
func Save(dir string, assignments []ReviewerAssignment, now time.Time) (string, error) {
	raw, err := Marshal(assignments)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(now))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing assignment document, %w", err)
	}
	return path, nil
}

// Load reads an assignment document from disk.
func Load(path string) ([]ReviewerAssignment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assignment document, %w", err)
	}
	return Unmarshal(raw)
}
