package service

import (
	"context"
	"errors"

	"copytrade/internal/models"
	"copytrade/pkg/utils"
)

// credentialDecryptor расшифровывает сохранённые ключи и переводит
// записи старого формата в текущий (перешифровка + UpdateSecrets).
type credentialDecryptor struct {
	cipher CredentialCipher
	repo   CredentialRepositoryInterface
	audit  Auditor
	logger *utils.Logger
}

// decrypt возвращает расшифрованные ключи. Неудачная миграция не мешает
// использовать ключи: будет повторена при следующем чтении.
func (d *credentialDecryptor) decrypt(ctx context.Context, cred *models.ExchangeCredential) (models.DecryptedCredential, error) {
	var out models.DecryptedCredential

	if cred.APIKey == "" || cred.APISecret == "" {
		return out, &CredentialError{UserID: cred.UserID, Exchange: cred.Exchange, Err: errors.New("api key or secret is missing")}
	}

	migrate := false
	fields := []struct {
		stored string
		dst    *string
	}{
		{cred.APIKey, &out.APIKey},
		{cred.APISecret, &out.APISecret},
		{cred.Passphrase, &out.Passphrase},
	}
	for _, f := range fields {
		if f.stored == "" {
			continue
		}
		plain, legacy, err := d.cipher.DecryptWithLegacyFallback(f.stored)
		if err != nil {
			out.Wipe()
			return out, &CredentialError{UserID: cred.UserID, Exchange: cred.Exchange, Err: err}
		}
		*f.dst = plain
		migrate = migrate || legacy
	}

	if migrate {
		d.migrate(ctx, cred, out)
	}
	return out, nil
}

func (d *credentialDecryptor) migrate(ctx context.Context, cred *models.ExchangeCredential, plain models.DecryptedCredential) {
	log := d.logger.With(utils.UserID(cred.UserID), utils.Exchange(cred.Exchange))

	apiKey, err := d.cipher.Encrypt(plain.APIKey)
	if err != nil {
		log.Warn("credential migration: encrypt api key", utils.Err(err))
		return
	}
	apiSecret, err := d.cipher.Encrypt(plain.APISecret)
	if err != nil {
		log.Warn("credential migration: encrypt api secret", utils.Err(err))
		return
	}
	passphrase := ""
	if plain.Passphrase != "" {
		if passphrase, err = d.cipher.Encrypt(plain.Passphrase); err != nil {
			log.Warn("credential migration: encrypt passphrase", utils.Err(err))
			return
		}
	}

	if err := d.repo.UpdateSecrets(ctx, cred.ID, apiKey, apiSecret, passphrase); err != nil {
		log.Warn("credential migration: persist", utils.Err(err))
		return
	}
	cred.APIKey, cred.APISecret, cred.Passphrase = apiKey, apiSecret, passphrase

	log.Info("credentials migrated to current encryption format")
	if d.audit != nil {
		d.audit.Record(userAudit(models.AuditCredentialMigration, models.SeverityInfo, cred.UserID, cred.Exchange,
			"credentials re-encrypted", map[string]interface{}{
				"credential_id": cred.ID,
				"account_type":  string(cred.AccountType),
			}))
	}
}
