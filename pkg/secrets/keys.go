package secrets

import (
	"context"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// setupKey runs the missing-key sub-flow: generate a new key or import an
// existing one. Nothing is decrypted until it succeeds.
func (p *Pipeline) setupKey(ctx context.Context, r *run) error {
	if p.prompter == nil {
		return errors.Newf(errors.ErrKeyMissing, "no key material for profile %s", r.profile).
			WithDetail("key_ref", r.keyRef)
	}

	choice, err := p.prompter.KeySetup(ctx, r.profile)
	if err != nil {
		return errors.Wrapf(err, errors.ErrKeyMissing, "no key material for profile %s", r.profile).
			WithDetail("key_ref", r.keyRef)
	}

	var recipient, method string
	switch choice {
	case types.KeySetupGenerate:
		recipient, err = p.oracle.GenerateKey(ctx, r.keyRef)
		method = MethodGenerated
	case types.KeySetupImport:
		recipient, err = p.importKey(ctx, r)
		method = MethodImported
	default:
		return errors.Newf(errors.ErrKeyMissing, "key setup declined for profile %s", r.profile).
			WithDetail("key_ref", r.keyRef)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrKeyMissing, "key setup failed for profile %s", r.profile).
			WithDetail("key_ref", r.keyRef)
	}

	r.logger.Info().Str("method", method).Str("recipient", recipient).Msg("Key material created")
	p.recordKey(r, recipient, method)
	return nil
}

// importReplacement asks for key material during the mismatch dialog and
// replaces the profile's key with it
func (p *Pipeline) importReplacement(ctx context.Context, r *run) error {
	recipient, err := p.importKey(ctx, r)
	if err != nil {
		return err
	}
	r.logger.Info().Str("recipient", recipient).Msg("Replacement key imported")
	p.recordKey(r, recipient, MethodImported)
	return nil
}

func (p *Pipeline) importKey(ctx context.Context, r *run) (string, error) {
	material, err := p.prompter.KeyMaterial(ctx, r.profile)
	if err != nil {
		return "", err
	}
	buf := []byte(material)
	defer wipe(buf)
	return p.oracle.ImportKey(ctx, r.keyRef, buf)
}

// recordKey writes key-creation metadata. The key itself already exists
// at this point, so a failed write is only logged.
func (p *Pipeline) recordKey(r *run, recipient, method string) {
	err := WriteKeyMetadata(p.fs, p.paths.KeyMetadataPath(r.profile), KeyMetadata{
		Profile:   r.profile,
		KeyRef:    r.keyRef,
		Recipient: recipient,
		Method:    method,
		CreatedAt: p.now().UTC(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record key metadata")
	}
}
