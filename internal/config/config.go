package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Server
	ApiPort        string
	ServiceApiPort string

	// Blob storage
	StorageDriver       string // "walrus" or "s3"
	WalrusPublisherURL  string
	WalrusAggregatorURL string
	WalrusEpochs        int
	// Ordered list of response fields probed for the blob ID. The publisher's
	// response shape differs between versions, so this is data, not code.
	BlobIDFields []string

	// Ledger (Sui JSON-RPC)
	SuiRpcURL        string
	SuiNetwork       string
	AccessPassMarker string
	CaretakerMarker  string
	ListingMarker    string

	// Access grants
	GrantSecret     string
	AccessTokenTTL  time.Duration
	PaymentCacheTTL time.Duration

	// Uploads
	UploadMaxSizeMB int

	// AWS S3 (used when StorageDriver == "s3")
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string

	// App Defaults
	AppName         string
	DefaultPageSize int
	GetCacheTTL     time.Duration

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

const (
	defaultPublisherURL  = "https://publisher.walrus-testnet.walrus.space"
	defaultAggregatorURL = "https://aggregator.walrus-testnet.walrus.space"
	defaultSuiRpcURL     = "https://fullnode.testnet.sui.io:443"
	defaultBlobIDFields  = "newlyCreated.blobObject.blobId,alreadyCertified.blobId,blobId,id,cid,hash"
)

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "dwello")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.GrantSecret, err = getRequiredEnv("GRANT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "3030")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")

	cfg.StorageDriver = getEnv("STORAGE_DRIVER", "walrus")
	if cfg.StorageDriver != "walrus" && cfg.StorageDriver != "s3" {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q: must be \"walrus\" or \"s3\"", cfg.StorageDriver)
	}
	cfg.WalrusPublisherURL = strings.TrimRight(getEnv("WALRUS_PUBLISHER_URL", defaultPublisherURL), "/")
	cfg.WalrusAggregatorURL = strings.TrimRight(getEnv("WALRUS_AGGREGATOR_URL", defaultAggregatorURL), "/")
	for _, field := range strings.Split(getEnv("BLOB_ID_FIELDS", defaultBlobIDFields), ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			cfg.BlobIDFields = append(cfg.BlobIDFields, trimmed)
		}
	}

	cfg.SuiRpcURL = getEnv("SUI_RPC_URL", defaultSuiRpcURL)
	cfg.SuiNetwork = getEnv("SUI_NETWORK", "testnet")
	cfg.AccessPassMarker = getEnv("ACCESS_PASS_MARKER", "::payments::AccessPass")
	cfg.CaretakerMarker = getEnv("CARETAKER_MARKER", "::registry::CaretakerCap")
	cfg.ListingMarker = getEnv("LISTING_MARKER", "::listings::House")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.AppName = getEnv("APP_NAME", "Dwello")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.WalrusEpochs, err = strconv.Atoi(getEnv("WALRUS_EPOCHS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid WALRUS_EPOCHS: %w", err)
	}

	accessTokenTTLSeconds, err := strconv.ParseInt(getEnv("ACCESS_TOKEN_TTL_SECONDS", "900"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL_SECONDS: %w", err)
	}
	cfg.AccessTokenTTL = time.Duration(accessTokenTTLSeconds) * time.Second

	paymentCacheTTLSeconds, err := strconv.ParseInt(getEnv("PAYMENT_CACHE_TTL_SECONDS", "300"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.PaymentCacheTTL = time.Duration(paymentCacheTTLSeconds) * time.Second

	getCacheTTLSeconds, err := strconv.ParseInt(getEnv("GET_CACHE_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GET_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.GetCacheTTL = time.Duration(getCacheTTLSeconds) * time.Second

	cfg.UploadMaxSizeMB, err = strconv.Atoi(getEnv("UPLOAD_MAX_SIZE_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_SIZE_MB: %w", err)
	}

	cfg.DefaultPageSize, err = strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PAGE_SIZE: %w", err)
	}

	// Rate Limiting
	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
