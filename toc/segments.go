package toc

import (
	json "github.com/goccy/go-json"

	"github.com/jpl-au/loom/segment"
)

func marshalSegments(segs []*segment.Segment) ([]byte, error) {
	return json.Marshal(segs)
}

func unmarshalSegments(data []byte) ([]*segment.Segment, error) {
	var segs []*segment.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, err
	}
	return segs, nil
}
