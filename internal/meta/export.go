package meta

import (
	"encoding/json"
	"fmt"
)

// IndexFile lists every exported schema.
const IndexFile = "index.json"

// IndexEntry is one line of the export index.
type IndexEntry struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Endpoint   string `json:"endpoint"`
	File       string `json:"file"`
	ServerSide bool   `json:"serverSide,omitempty"`
}

// Export validates schemas and renders the JSON export: one <name>.json
// document per schema plus IndexFile. Keys are file names.
func Export(schemas []*SchemaMeta) (map[string][]byte, error) {
	reg := NewRegistry()
	if err := reg.Replace(schemas); err != nil {
		return nil, fmt.Errorf("validating schemas: %w", err)
	}

	files := make(map[string][]byte, len(schemas)+1)
	index := make([]IndexEntry, 0, len(schemas))
	for _, s := range reg.All() {
		file := s.Name + ".json"
		data, err := marshalFile(file, s.Doc())
		if err != nil {
			return nil, err
		}
		files[file] = data
		title := s.TableName
		if title == "" {
			title = s.DisplayName()
		}
		index = append(index, IndexEntry{
			Name:       s.Name,
			Title:      title,
			Endpoint:   s.APIEndpoint,
			File:       file,
			ServerSide: s.ServerSide,
		})
	}
	data, err := marshalFile(IndexFile, index)
	if err != nil {
		return nil, err
	}
	files[IndexFile] = data
	return files, nil
}

func marshalFile(name string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", name, err)
	}
	return append(data, '\n'), nil
}
