package secrets

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/rs/zerolog"
)

// Oracle is the encryption capability consumed by the pipeline. A key
// reference names where a profile's key material lives; for AgeCLI it is
// the path of an age identity file.
//
// Decrypt reports a key mismatch with ErrKeyMismatch and any other tool
// failure with ErrOracle.
type Oracle interface {
	HasKey(ctx context.Context, keyRef string) (bool, error)
	GenerateKey(ctx context.Context, keyRef string) (recipient string, err error)
	ImportKey(ctx context.Context, keyRef string, material []byte) (recipient string, err error)
	Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error)
}

// mismatchMarkers are the age diagnostics for ciphertext sealed to other
// recipients
var mismatchMarkers = []string{
	"no identity matched any of the recipients",
	"incorrect identity",
}

// AgeCLI implements Oracle by running the age and age-keygen binaries
type AgeCLI struct {
	AgeBinary    string
	KeygenBinary string
	logger       zerolog.Logger
}

// NewAgeCLI creates an AgeCLI. Empty binary names default to "age" and
// "age-keygen" on PATH.
func NewAgeCLI(ageBinary, keygenBinary string) *AgeCLI {
	if ageBinary == "" {
		ageBinary = "age"
	}
	if keygenBinary == "" {
		keygenBinary = "age-keygen"
	}
	return &AgeCLI{
		AgeBinary:    ageBinary,
		KeygenBinary: keygenBinary,
		logger:       logging.GetLogger("secrets.age"),
	}
}

// HasKey reports whether an identity file exists at keyRef
func (a *AgeCLI) HasKey(ctx context.Context, keyRef string) (bool, error) {
	info, err := os.Stat(keyRef)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrFileAccess, "cannot check key %s", keyRef)
	}
	return info.Size() > 0, nil
}

// GenerateKey writes a fresh identity to keyRef and returns its recipient
func (a *AgeCLI) GenerateKey(ctx context.Context, keyRef string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(keyRef), 0700); err != nil {
		return "", errors.Wrapf(err, errors.ErrDirCreate, "cannot create key directory for %s", keyRef)
	}
	if _, err := a.run(ctx, nil, a.KeygenBinary, "-o", keyRef); err != nil {
		return "", err
	}
	return a.recipient(ctx, keyRef)
}

// ImportKey stores identity material at keyRef after checking age can
// derive a recipient from it
func (a *AgeCLI) ImportKey(ctx context.Context, keyRef string, material []byte) (string, error) {
	if len(bytes.TrimSpace(material)) == 0 {
		return "", errors.New(errors.ErrInvalidInput, "empty key material")
	}
	if _, err := a.run(ctx, material, a.KeygenBinary, "-y"); err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidInput, "key material is not an age identity")
	}
	if err := os.MkdirAll(filepath.Dir(keyRef), 0700); err != nil {
		return "", errors.Wrapf(err, errors.ErrDirCreate, "cannot create key directory for %s", keyRef)
	}
	if err := os.WriteFile(keyRef, material, 0600); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileWrite, "cannot write key %s", keyRef)
	}
	return a.recipient(ctx, keyRef)
}

func (a *AgeCLI) recipient(ctx context.Context, keyRef string) (string, error) {
	out, err := a.run(ctx, nil, a.KeygenBinary, "-y", keyRef)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Decrypt feeds ciphertext to age on stdin. The plaintext only ever lives
// in the returned buffer.
func (a *AgeCLI) Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error) {
	ok, err := a.HasKey(ctx, keyRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrKeyMissing, "no key material at %s", keyRef)
	}
	return a.run(ctx, ciphertext, a.AgeBinary, "--decrypt", "--identity", keyRef)
}

func (a *AgeCLI) run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	logging.LogCommand(a.logger, name, args)

	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		for _, marker := range mismatchMarkers {
			if strings.Contains(msg, marker) {
				return nil, errors.Wrap(err, errors.ErrKeyMismatch, msg)
			}
		}
		if msg == "" {
			msg = name + " failed"
		}
		return nil, errors.Wrap(err, errors.ErrOracle, msg)
	}
	return stdout.Bytes(), nil
}
