package output

import "encoding/json"

// JSONFormatter renders Document.Data as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Format(doc Document) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(doc.Data, "", "  ")
	} else {
		data, err = json.Marshal(doc.Data)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
