package keys

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"custody/internal/config"
	"custody/internal/infra/crypto"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"go.uber.org/zap"
)

const (
	SourceBase64         = "env_base64"
	SourceHex            = "env_hex"
	SourceSecretsManager = "secrets_manager"
	SourceEphemeral      = "ephemeral"
)

var ErrEphemeralKeyRefused = errors.New("ephemeral master key refused in production")

// MasterKey is the single vault key. Ephemeral keys are lost on restart and
// every document encrypted under them becomes unreadable.
type MasterKey struct {
	Key       []byte
	Source    string
	Ephemeral bool
}

// LoadMasterKey resolves the key from MASTER_KEY_BASE64, then MASTER_KEY_HEX,
// then the Secrets Manager secret MASTER_KEY_SECRET_ID. With none configured
// it generates an ephemeral key outside production.
func LoadMasterKey(ctx context.Context, cfg config.Config, secrets secretsmanageriface.SecretsManagerAPI, logger *zap.Logger) (MasterKey, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case cfg.MasterKeyBase64 != "":
		key, err := decodeBase64Key(cfg.MasterKeyBase64)
		if err != nil {
			return MasterKey{}, fmt.Errorf("MASTER_KEY_BASE64: %w", err)
		}
		return MasterKey{Key: key, Source: SourceBase64}, nil
	case cfg.MasterKeyHex != "":
		key, err := decodeHexKey(cfg.MasterKeyHex)
		if err != nil {
			return MasterKey{}, fmt.Errorf("MASTER_KEY_HEX: %w", err)
		}
		return MasterKey{Key: key, Source: SourceHex}, nil
	case cfg.MasterKeySecretID != "":
		key, err := fetchSecretKey(ctx, secrets, cfg.MasterKeySecretID)
		if err != nil {
			return MasterKey{}, err
		}
		return MasterKey{Key: key, Source: SourceSecretsManager}, nil
	}

	if cfg.Production() {
		return MasterKey{}, ErrEphemeralKeyRefused
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return MasterKey{}, err
	}
	logger.Warn("no master key configured; generated an ephemeral key. Documents stored now will be unreadable after restart",
		zap.String("key_source", SourceEphemeral),
	)
	return MasterKey{Key: key, Source: SourceEphemeral, Ephemeral: true}, nil
}

func fetchSecretKey(ctx context.Context, secrets secretsmanageriface.SecretsManagerAPI, secretID string) ([]byte, error) {
	if secrets == nil {
		return nil, errors.New("MASTER_KEY_SECRET_ID set but no secrets manager client configured")
	}
	out, err := secrets.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch master key secret: %w", err)
	}
	if len(out.SecretBinary) > 0 {
		if len(out.SecretBinary) != crypto.KeySize {
			return nil, fmt.Errorf("master key secret: expected %d bytes, got %d", crypto.KeySize, len(out.SecretBinary))
		}
		return append([]byte(nil), out.SecretBinary...), nil
	}
	value := strings.TrimSpace(aws.StringValue(out.SecretString))
	if value == "" {
		return nil, errors.New("master key secret is empty")
	}
	if key, err := decodeHexKey(value); err == nil {
		return key, nil
	}
	key, err := decodeBase64Key(value)
	if err != nil {
		return nil, fmt.Errorf("master key secret: %w", err)
	}
	return key, nil
}

func decodeBase64Key(value string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, errors.New("invalid base64")
	}
	return checkLength(key)
}

func decodeHexKey(value string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, errors.New("invalid hex")
	}
	return checkLength(key)
}

func checkLength(key []byte) ([]byte, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}
