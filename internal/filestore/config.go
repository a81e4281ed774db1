package filestore

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Root is the base directory of the local provider. Buckets are
	// subdirectories of Root.
	Root string `yaml:"root,omitempty"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint,omitempty"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key,omitempty"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key,omitempty"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl,omitempty"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region,omitempty"`

	// DefaultBucket is the bucket specification files are written to when
	// the caller does not name one.
	DefaultBucket string `yaml:"bucket,omitempty"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}

// LocalConfig returns a config for a directory on the local file system.
// The bucket "." is root itself.
func LocalConfig(root string) *Config {
	return &Config{
		Provider:      ProviderLocal,
		Root:          root,
		DefaultBucket: ".",
	}
}
