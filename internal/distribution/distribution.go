// Package distribution is the registry-client collaborator: it knows
// how to parse a reference, fetch a manifest/config/layer set from a
// remote registry, and push a locally staged image back. It never
// touches the LayerStore/ImageStore directly — Builder orchestrates
// those against the primitives this package exposes.
package distribution

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ParseReference parses ref (repository[:tag][@digest]) into a
// name.Reference, allowing insecure (http, or https with a
// self-signed cert) registries when insecure is set.
func ParseReference(ref string, insecure bool) (name.Reference, error) {
	var opts []name.Option
	if insecure {
		opts = append(opts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return parsed, nil
}

// BuildAuth resolves the remote.Option set for a registry operation.
// anonymous forces an unauthenticated request; otherwise it consults
// the host credential store (docker config, credential helpers) via
// authn.DefaultKeychain, which itself degrades to anonymous if no
// matching credentials are found — store_auth_if_needed's "degrade
// silently" requirement is handled by the keychain, not by us.
func BuildAuth(insecure, anonymous bool) []remote.Option {
	var opts []remote.Option
	if anonymous {
		opts = append(opts, remote.WithAuth(authn.Anonymous))
	} else {
		opts = append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	}
	if insecure {
		opts = append(opts, remote.WithTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}))
	}
	return opts
}

// ManifestAndConfig is the result of pull_manifest_and_config: the
// parsed OCI manifest (media types already normalized), its bytes as
// re-marshaled after normalization, the raw config bytes, and the
// registry-library layer handles
// used to stream each blob afterward.
type ManifestAndConfig struct {
	Manifest      *ocispec.Manifest
	ManifestBytes []byte
	ConfigBytes   []byte
	Layers        []ggcrv1.Layer
}

// PullManifestAndConfig fetches ref's manifest and config, converting
// the manifest to OCI shape (go-containerregistry's v1.Manifest JSON
// is wire-compatible with OCI's, so normalizeMediaType is the only
// conversion needed). Layer blobs are not downloaded here; the caller
// streams them via PullBlob, concurrently, using the returned layers.
func PullManifestAndConfig(ref name.Reference, opts []remote.Option) (*ManifestAndConfig, error) {
	img, err := remote.Image(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref, err)
	}

	rawManifest, err := img.RawManifest()
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := unmarshalJSON(rawManifest, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	normalizeManifest(&manifest)
	manifestBytes, err := marshalJSON(&manifest)
	if err != nil {
		return nil, fmt.Errorf("re-marshal manifest: %w", err)
	}

	configBytes, err := img.RawConfigFile()
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}

	return &ManifestAndConfig{
		Manifest:      &manifest,
		ManifestBytes: manifestBytes,
		ConfigBytes:   configBytes,
		Layers:        layers,
	}, nil
}

// PullBlob opens the compressed content of layer along with its
// digest and size, for the caller to stream into the LayerStore.
func PullBlob(layer ggcrv1.Layer) (io.ReadCloser, digest.Digest, int64, error) {
	h, err := layer.Digest()
	if err != nil {
		return nil, "", 0, fmt.Errorf("layer digest: %w", err)
	}
	size, err := layer.Size()
	if err != nil {
		return nil, "", 0, fmt.Errorf("layer size: %w", err)
	}
	rc, err := layer.Compressed()
	if err != nil {
		return nil, "", 0, fmt.Errorf("open layer: %w", err)
	}
	return rc, digest.Digest(h.String()), size, nil
}

// Push uploads img (built via NewImage) to the repository addressed
// by ref. remote.Write handles the distribution protocol itself:
// existing blobs are skipped (HEAD before PUT), and the manifest PUT
// is the last call, so a push that fails partway never leaves a
// manifest pointing at missing blobs.
func Push(ref name.Reference, img ggcrv1.Image, opts []remote.Option) error {
	if err := remote.Write(ref, img, opts...); err != nil {
		return fmt.Errorf("push %s: %w", ref, err)
	}
	return nil
}
