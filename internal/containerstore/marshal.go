package containerstore

import (
	"encoding/json"
	"fmt"

	runtimespec "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibuilder/ocibuilder/pkg/fileutil"
)

func marshalSpec(spec *runtimespec.Spec) ([]byte, error) {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal runtime spec: %w", err)
	}
	return data, nil
}

func writeFile(path string, data []byte) error {
	return fileutil.AtomicWriteFile(path, data, 0o644)
}
