package schema

import json "github.com/goccy/go-json"

func marshalSnapshot(s snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}
