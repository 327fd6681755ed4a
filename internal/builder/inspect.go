package builder

import (
	"encoding/json"
	"fmt"
)

// Inspect returns the JSON config for an image or a container, tried
// in that order against nameOrID. Neither lookup takes the builder
// lock's write path, but it goes through withLock anyway so a
// concurrent commit/rm can't observe or leave a half-written record.
func (b *Builder) Inspect(nameOrID string) ([]byte, error) {
	var result []byte
	err := b.withLock(func() error {
		data, err := b.inspect(nameOrID)
		result = data
		return err
	})
	return result, err
}

func (b *Builder) inspect(nameOrID string) ([]byte, error) {
	if imageID, err := b.Images.ImageDigest(nameOrID); err == nil {
		cfg, err := b.Images.GetConfig(imageID)
		if err != nil {
			return nil, err
		}
		return marshalInspect(cfg)
	}

	cntID, err := b.Containers.ContainerDigest(nameOrID)
	if err != nil {
		return nil, err
	}
	cfg, err := b.Containers.GetBuilderConfig(cntID)
	if err != nil {
		return nil, err
	}
	return marshalInspect(cfg)
}

func marshalInspect(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal inspect output: %w", err)
	}
	return data, nil
}
