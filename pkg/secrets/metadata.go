package secrets

import (
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/pelletier/go-toml/v2"
)

// Key creation methods recorded in metadata
const (
	MethodGenerated = "generated"
	MethodImported  = "imported"
)

// KeyMetadata records how a profile's key material came to exist. It is
// written only by the key setup sub-flow and by a replacement import
// during the mismatch dialog.
type KeyMetadata struct {
	Profile   string    `toml:"profile"`
	KeyRef    string    `toml:"key_ref"`
	Recipient string    `toml:"recipient"`
	Method    string    `toml:"method"`
	CreatedAt time.Time `toml:"created_at"`
}

// WriteKeyMetadata stores meta at path as TOML
func WriteKeyMetadata(fs types.FS, path string, meta KeyMetadata) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode key metadata")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "cannot create %s", filepath.Dir(path))
	}
	if err := fs.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "cannot write key metadata %s", path)
	}
	return nil
}

// ReadKeyMetadata loads the metadata at path. A missing file returns
// (nil, nil).
func ReadKeyMetadata(fs types.FS, path string) (*KeyMetadata, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read key metadata %s", path)
	}
	var meta KeyMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "invalid key metadata %s", path)
	}
	return &meta, nil
}
