package asteriskace

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Checksum returns a deterministic hash over the rule's scope and expiry
func (r *AccessRule) Checksum() string {
	data, _ := json.Marshal(struct {
		UserID    string
		Domain    Filter
		Topic     Filter
		Date      DateFilter
		ExpiresAt int64
	}{
		UserID:    r.UserID,
		Domain:    r.Domain,
		Topic:     r.Topic,
		Date:      r.Date,
		ExpiresAt: r.ExpiresAt.UnixNano(),
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SignedRuleBundle carries a set of rules plus per-rule ed25519 signatures,
// for moving grants between environments.
type SignedRuleBundle struct {
	Rules      []*AccessRule     `json:"rules"`
	Signatures map[string]string `json:"signatures"` // rule id -> base64(sig)
	Meta       map[string]any    `json:"meta,omitempty"`
}

// SignRule returns an ed25519 signature (base64) binding the rule id to its
// checksum.
func SignRule(priv ed25519.PrivateKey, r *AccessRule) (string, error) {
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       r.ID,
		Checksum: r.Checksum(),
	})
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRuleSignature checks a signature against the rule's current checksum
func VerifyRuleSignature(pub ed25519.PublicKey, r *AccessRule, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       r.ID,
		Checksum: r.Checksum(),
	})
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SignBundle signs each rule with priv
func SignBundle(priv ed25519.PrivateKey, rules []*AccessRule) (*SignedRuleBundle, error) {
	b := &SignedRuleBundle{Rules: rules, Signatures: make(map[string]string)}
	for _, r := range rules {
		s, err := SignRule(priv, r)
		if err != nil {
			return nil, err
		}
		b.Signatures[r.ID] = s
	}
	return b, nil
}

// VerifyBundle verifies every rule signature with the given public key
func VerifyBundle(pub ed25519.PublicKey, b *SignedRuleBundle) (bool, error) {
	for _, r := range b.Rules {
		sig, ok := b.Signatures[r.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for rule %s", r.ID)
		}
		okv, err := VerifyRuleSignature(pub, r, sig)
		if err != nil || !okv {
			return false, fmt.Errorf("bad signature for rule %s: %v", r.ID, err)
		}
	}
	return true, nil
}

// ExportBundle signs every rule currently in the store
func (e *Engine) ExportBundle(ctx context.Context, priv ed25519.PrivateKey) (*SignedRuleBundle, error) {
	rules, err := e.rules.ListAllRules(ctx)
	if err != nil {
		return nil, err
	}
	return SignBundle(priv, rules)
}

// ApplySignedBundle verifies the bundle and inserts its rules. Imported
// rules carry their original ids and expirations; scope validity is checked
// again on import so a tampered or cross-catalog bundle cannot smuggle an
// invalid topic/domain pairing.
func (e *Engine) ApplySignedBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedRuleBundle) error {
	ok, err := VerifyBundle(pub, bundle)
	if err != nil || !ok {
		return fmt.Errorf("bundle verification failed: %v", err)
	}
	for _, r := range bundle.Rules {
		if r.UserID == "" {
			return fmt.Errorf("bundle rule %s: user id is required", r.ID)
		}
		if !r.Topic.IsAny() {
			if r.Domain.IsAny() {
				return fmt.Errorf("bundle rule %s: %w", r.ID, ErrInvalidScope)
			}
			t, err := e.catalog.GetTopic(ctx, r.Topic.ID)
			if err != nil {
				return err
			}
			if t.DomainID != r.Domain.ID {
				return fmt.Errorf("bundle rule %s: %w", r.ID, ErrInvalidScope)
			}
		}
		if err := e.rules.CreateRule(ctx, r); err != nil {
			return err
		}
	}
	e.epoch.Add(1)
	return nil
}
