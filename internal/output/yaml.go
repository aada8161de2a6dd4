package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders Document.Data as YAML. Values go through their JSON
// encoding first so field names and custom marshalers match the JSON output.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(doc Document) (string, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return "", err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
