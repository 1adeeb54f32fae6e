package testutil

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arthur-debert/dotapply/pkg/errors"
)

const sealPrefix = "fake-age:"

// FailKeyID seals a ciphertext the FakeOracle refuses with ORACLE_ERROR
const FailKeyID = "!fail"

// Seal produces a ciphertext FakeOracle decrypts only with keyID loaded.
// The plaintext is stored reversed so tests can assert storage never
// holds it verbatim.
func Seal(keyID string, plaintext []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(sealPrefix + keyID + "\n")
	for i := len(plaintext) - 1; i >= 0; i-- {
		buf.WriteByte(plaintext[i])
	}
	return buf.Bytes()
}

// FakeOracle is an in-memory stand-in for the age binaries. Each key
// reference holds a key id; a ciphertext sealed for another id is a key
// mismatch.
type FakeOracle struct {
	mu        sync.Mutex
	keys      map[string]string
	generated int

	// Calls records each capability call as "<op>:<keyRef>"
	Calls []string
}

// NewFakeOracle creates an oracle with no key material
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{keys: make(map[string]string)}
}

// SetKey loads key material for keyRef
func (o *FakeOracle) SetKey(keyRef, keyID string) *FakeOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keys[keyRef] = keyID
	return o
}

// KeyID returns the key id currently held for keyRef
func (o *FakeOracle) KeyID(keyRef string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keys[keyRef]
}

// HasKey reports whether keyRef holds key material
func (o *FakeOracle) HasKey(ctx context.Context, keyRef string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls = append(o.Calls, "has:"+keyRef)
	_, ok := o.keys[keyRef]
	return ok, nil
}

// GenerateKey creates fresh key material for keyRef
func (o *FakeOracle) GenerateKey(ctx context.Context, keyRef string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls = append(o.Calls, "generate:"+keyRef)
	o.generated++
	id := fmt.Sprintf("generated-%d", o.generated)
	o.keys[keyRef] = id
	return "age1" + id, nil
}

// ImportKey loads the given material, which is used verbatim as key id
func (o *FakeOracle) ImportKey(ctx context.Context, keyRef string, material []byte) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls = append(o.Calls, "import:"+keyRef)
	id := strings.TrimSpace(string(material))
	if id == "" {
		return "", errors.New(errors.ErrInvalidInput, "empty key material")
	}
	o.keys[keyRef] = id
	return "age1" + id, nil
}

// Decrypt opens a ciphertext produced by Seal
func (o *FakeOracle) Decrypt(ctx context.Context, ciphertext []byte, keyRef string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls = append(o.Calls, "decrypt:"+keyRef)

	key, ok := o.keys[keyRef]
	if !ok {
		return nil, errors.Newf(errors.ErrKeyMissing, "no key material at %s", keyRef)
	}

	header, body, found := bytes.Cut(ciphertext, []byte("\n"))
	if !found || !bytes.HasPrefix(header, []byte(sealPrefix)) {
		return nil, errors.New(errors.ErrOracle, "malformed ciphertext")
	}
	sealedFor := string(header[len(sealPrefix):])
	if sealedFor == FailKeyID {
		return nil, errors.New(errors.ErrOracle, "decryption tool crashed")
	}
	if sealedFor != key {
		return nil, errors.New(errors.ErrKeyMismatch, "no identity matched any of the recipients")
	}

	plaintext := make([]byte, len(body))
	for i := range body {
		plaintext[i] = body[len(body)-1-i]
	}
	return plaintext, nil
}

// CallCount returns how many calls of op were made
func (o *FakeOracle) CallCount(op string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.Calls {
		if strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}
