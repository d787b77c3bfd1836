package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Signer signs audit records with an ed25519 key loaded from, or
// generated into, a key directory.
type Signer struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	KeyID      string
}

// NewSigner loads the key named keyID from keyDir, generating and
// persisting a fresh one when absent.
func NewSigner(keyDir, keyID string) (*Signer, error) {
	if keyDir == "" {
		return nil, fmt.Errorf("key directory is required")
	}
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, err
	}

	keyPath := filepath.Join(keyDir, keyID+".key")

	var privateKey ed25519.PrivateKey
	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid private key size in %s", keyPath)
		}
		privateKey = ed25519.PrivateKey(data)
	} else {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		privateKey = generated
		if err := os.WriteFile(keyPath, []byte(privateKey), 0600); err != nil {
			return nil, err
		}
	}

	return &Signer{
		PrivateKey: privateKey,
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		KeyID:      keyID,
	}, nil
}

// Sign validates the record, signs its canonical encoding, and
// attaches the signature.
func (s *Signer) Sign(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record required")
	}

	recCopy := *rec
	recCopy.Signature = nil
	if err := recCopy.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&recCopy)
	if err != nil {
		return err
	}

	sig := ed25519.Sign(s.PrivateKey, data)
	rec.Signature = &Signature{
		Alg:      "ed25519",
		PubKeyID: s.KeyID,
		Sig:      base64.StdEncoding.EncodeToString(sig),
	}
	return nil
}

// Verify checks the attached signature against the key named by its
// pubkey ID in keyDir.
func Verify(rec *Record, keyDir string) error {
	if rec == nil {
		return fmt.Errorf("record required")
	}
	if rec.Signature == nil {
		return fmt.Errorf("signature required")
	}
	if err := rec.Signature.Validate(); err != nil {
		return err
	}

	recCopy := *rec
	recCopy.Signature = nil
	if err := recCopy.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&recCopy)
	if err != nil {
		return err
	}

	sigBytes, err := base64.StdEncoding.DecodeString(rec.Signature.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	pubKey, err := loadPublicKey(keyDir, rec.Signature.PubKeyID)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pubKey, data, sigBytes) {
		return fmt.Errorf("invalid audit signature for record %s", rec.ID)
	}
	return nil
}

func loadPublicKey(keyDir, keyID string) (ed25519.PublicKey, error) {
	if keyID == "" {
		return nil, fmt.Errorf("pubkey_id required")
	}
	data, err := os.ReadFile(filepath.Join(keyDir, keyID+".key"))
	if err != nil {
		return nil, err
	}
	priv := ed25519.PrivateKey(data)
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size")
	}
	return priv.Public().(ed25519.PublicKey), nil
}
