package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// FileName is the name of the manifest shipped inside an app package
const FileName = "manifest.webmanifest"

// ErrNameMissing is returned for documents without a name member
var ErrNameMissing = errors.New("manifest name missing")

// ParseError reports a malformed manifest document
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid manifest: %v", e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseManifest decodes an installed app manifest
func ParseManifest(data []byte) (*Manifest, error) {
	return parseManifest("", data)
}

// ParseUpdateManifest decodes an update manifest
func ParseUpdateManifest(data []byte) (*UpdateManifest, error) {
	return parseUpdateManifest("", data)
}

// ReadManifest reads and decodes a manifest file
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return parseManifest(path, data)
}

// ReadUpdateManifest reads and decodes an update manifest file
func ReadUpdateManifest(path string) (*UpdateManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return parseUpdateManifest(path, data)
}

func parseManifest(source string, data []byte) (*Manifest, error) {
	if err := utils.DefaultJSONValidator().ValidateSize(data); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	var doc manifestDoc
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if doc.Name == "" {
		return nil, &ParseError{Source: source, Err: ErrNameMissing}
	}
	return newManifest(&doc), nil
}

func parseUpdateManifest(source string, data []byte) (*UpdateManifest, error) {
	if err := utils.DefaultJSONValidator().ValidateSize(data); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	var doc updateDoc
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if doc.Name == "" {
		return nil, &ParseError{Source: source, Err: ErrNameMissing}
	}
	return newUpdateManifest(&doc), nil
}

// MarshalJSON implements json.Marshaler
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(m.doc())
}

// UnmarshalJSON implements json.Unmarshaler. It exists so that records
// holding a manifest can be decoded; a decoded Manifest is not mutated
// afterwards.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	parsed, err := ParseManifest(data)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (u *UpdateManifest) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(u.doc())
}

// UnmarshalJSON implements json.Unmarshaler
func (u *UpdateManifest) UnmarshalJSON(data []byte) error {
	parsed, err := ParseUpdateManifest(data)
	if err != nil {
		return err
	}
	*u = *parsed
	return nil
}
