package distribution

import (
	"encoding/json"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// normalizeManifest rewrites every Docker-style media type in m to its
// OCI equivalent in place.
func normalizeManifest(m *ocispec.Manifest) {
	m.MediaType = layerstore.NormalizeMediaType(m.MediaType)
	m.Config.MediaType = layerstore.NormalizeMediaType(m.Config.MediaType)
	for i := range m.Layers {
		m.Layers[i].MediaType = layerstore.NormalizeMediaType(m.Layers[i].MediaType)
	}
}
