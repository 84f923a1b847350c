package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/emmystark/dwello/internal/config"
	"github.com/emmystark/dwello/internal/ledger"
	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/storage"
)

// IAccessService defines the access gate guarding paid content.
type IAccessService interface {
	// CheckAccess combines the payment check and (when blobID is non-empty)
	// the blob validity check into one decision. It never returns an error:
	// sub-check failures are captured in the decision with access denied.
	CheckAccess(ctx context.Context, address, listingID, blobID string) models.AccessDecision
	// PaymentStatus runs the raw access-pass check against the ledger.
	PaymentStatus(ctx context.Context, address, listingID string) (*models.PaymentStatus, error)
	GenerateAccessToken(address, listingID string) (string, error)
	ValidateAccessToken(tokenString, address, listingID string) bool
}

// accessService implements IAccessService.
type accessService struct {
	cfg    *config.Config
	ledger ledger.IClient
	blobs  storage.BlobStore
	rdb    *redis.Client // optional verdict cache; nil disables caching
}

// NewAccessService creates a new AccessService.
func NewAccessService(cfg *config.Config, ledgerClient ledger.IClient, blobs storage.BlobStore, rdb *redis.Client) IAccessService {
	return &accessService{cfg: cfg, ledger: ledgerClient, blobs: blobs, rdb: rdb}
}

func paymentCacheKey(address, listingID string) string {
	return fmt.Sprintf("paid:%s:%s", address, listingID)
}

// PaymentStatus checks the ledger for an access pass. Positive verdicts are
// cached; negative and errored verdicts never are, so a payment made a moment
// later is seen on the next check.
func (s *accessService) PaymentStatus(ctx context.Context, address, listingID string) (*models.PaymentStatus, error) {
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, paymentCacheKey(address, listingID)).Bytes(); err == nil {
			var cached models.PaymentStatus
			if json.Unmarshal(data, &cached) == nil && cached.HasPaid {
				return &cached, nil
			}
		}
	}

	status, err := s.ledger.HasAccessPass(ctx, address, listingID)
	if err != nil {
		return nil, err
	}

	if status.HasPaid && s.rdb != nil {
		if data, err := json.Marshal(status); err == nil {
			if err := s.rdb.Set(ctx, paymentCacheKey(address, listingID), data, s.cfg.PaymentCacheTTL).Err(); err != nil {
				log.Printf("Failed to cache payment verdict for %s/%s: %v", address, listingID, err)
			}
		}
	}

	return status, nil
}

// CheckAccess is the single decision point in front of paid content. It is
// fail-closed: an error from either sub-check denies access and is recorded in
// the decision rather than propagated.
func (s *accessService) CheckAccess(ctx context.Context, address, listingID, blobID string) models.AccessDecision {
	decision := models.AccessDecision{}

	status, err := s.PaymentStatus(ctx, address, listingID)
	if err != nil {
		log.Printf("Access check payment verification failed for %s/%s: %v", address, listingID, err)
		decision.Error = err.Error()
		return decision
	}
	decision.PaymentVerified = status.HasPaid
	decision.PassID = status.PassID

	if blobID == "" {
		// Payment-only check.
		decision.BlobValid = true
	} else {
		blobStatus := s.blobs.Validate(ctx, blobID)
		decision.BlobValid = blobStatus.Valid
		if blobStatus.Error != "" {
			decision.Error = blobStatus.Error
		}
	}

	decision.AccessGranted = decision.PaymentVerified && decision.BlobValid
	return decision
}

// accessClaims is the payload of a grant token issued after a successful gate
// check. It lets subsequent media fetches skip the ledger scan.
type accessClaims struct {
	Address   string `json:"adr"`
	ListingID string `json:"lst"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed short-lived grant for one address and
// one listing.
func (s *accessService) GenerateAccessToken(address, listingID string) (string, error) {
	now := time.Now()
	claims := &accessClaims{
		Address:   address,
		ListingID: listingID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "dwello-gate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.GrantSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// ValidateAccessToken checks a grant token against the current request. A
// failed validation is not a denial: callers fall back to the full gate check.
func (s *accessService) ValidateAccessToken(tokenString, address, listingID string) bool {
	claims := &accessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.GrantSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	return claims.Address == address && claims.ListingID == listingID
}
