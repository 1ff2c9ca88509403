package mapping

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk mapping layout. JSON files parse too, since
// JSON is valid YAML.
//
//	tables:
//	  - name: job
//	    columns:
//	      - name: title
//	        path: title
//	      - name: date_posted
//	        path: datePosted
//	        type: date
type fileFormat struct {
	Tables []Table `yaml:"tables"`
}

// LoadFile reads and validates a mapping file.
func LoadFile(path string) (*FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a mapping document. Unknown keys are rejected.
func Parse(data []byte) (*FieldMapping, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	return New(f.Tables)
}

// Marshal renders m in the file format LoadFile reads.
func Marshal(m *FieldMapping) ([]byte, error) {
	return yaml.Marshal(fileFormat{Tables: m.Definition()})
}
