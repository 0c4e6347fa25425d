// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

var ErrExpired = errors.New("license has expired")

// KeygenValidator handles license validation using Keygen.sh
type KeygenValidator struct {
	logger      *zap.Logger
	fingerprint func() (string, error)
}

// NewKeygenValidator configures the keygen client for the account/product.
func NewKeygenValidator(accountID, productToken, productID string, logger *zap.Logger) *KeygenValidator {
	keygen.Account = accountID
	keygen.Product = productID
	keygen.Token = productToken

	return &KeygenValidator{
		logger:      logger.Named("license"),
		fingerprint: Fingerprint,
	}
}

// ValidateLicense validates licenseKey for this machine, activating the
// machine on first use.
func (kv *KeygenValidator) ValidateLicense(ctx context.Context, licenseKey string) error {
	kv.logger.Info("Validating license", zap.String("key", Mask(licenseKey)))

	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	keygen.LicenseKey = licenseKey
	license, err := keygen.Validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		kv.logger.Info("License not activated, attempting activation")
		machine, activateErr := license.Activate(ctx, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %w", activateErr)
		}
		kv.logger.Info("License activated successfully",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint),
		)

	case errors.Is(err, keygen.ErrLicenseExpired):
		return ErrExpired

	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}

	if license == nil {
		return errors.New("license not found")
	}

	kv.logger.Info("License validation successful", zap.String("license_id", license.ID))
	return nil
}

// Heartbeat re-validates the license every interval until ctx is done. A
// failed heartbeat is reported through onFailure.
func (kv *KeygenValidator) Heartbeat(ctx context.Context, licenseKey string, interval time.Duration, onFailure func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := kv.ValidateLicense(ctx, licenseKey); err != nil {
				kv.logger.Error("License heartbeat failed", zap.Error(err))
				if onFailure != nil {
					onFailure(err)
				}
			}
		}
	}
}

// Fingerprint identifies this machine by hostname, first hardware address
// and OS.
func Fingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var macAddresses []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			macAddresses = append(macAddresses, iface.HardwareAddr.String())
		}
	}
	if len(macAddresses) == 0 {
		return "", errors.New("no network interfaces found")
	}
	sort.Strings(macAddresses)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return fingerprintOf(hostname, macAddresses[0], runtime.GOOS), nil
}

func fingerprintOf(hostname, mac, goos string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, goos)))
	return fmt.Sprintf("%x", hash)
}

// Mask keeps the first characters of a license key for logging.
func Mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..."
}
