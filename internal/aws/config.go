package aws

import (
	"context"
	"fmt"
	"os"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	sdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const defaultRegion = "us-east-1"

// Context carries the region and key pair every AWS call is made with.
// It is a value type: WithRegion and WithKeys return updated copies.
type Context struct {
	region    string
	accessKey string
	secretKey string
}

func NewContext(region, accessKey, secretKey string) Context {
	return Context{
		region:    strings.TrimSpace(region),
		accessKey: strings.TrimSpace(accessKey),
		secretKey: strings.TrimSpace(secretKey),
	}
}

func (c Context) Region() string {
	return c.region
}

func (c Context) AccessKey() string {
	return c.accessKey
}

func (c Context) SecretKey() string {
	return c.secretKey
}

func (c Context) WithRegion(region string) Context {
	c.region = strings.TrimSpace(region)
	return c
}

func (c Context) WithKeys(accessKey, secretKey string) Context {
	c.accessKey = strings.TrimSpace(accessKey)
	c.secretKey = strings.TrimSpace(secretKey)
	return c
}

// HasKeys reports whether a complete static key pair is set.
func (c Context) HasKeys() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// CacheKey identifies the SDK clients built for this context. The secret is
// never part of it.
func (c Context) CacheKey() string {
	region := ResolveRegion(c.region)
	if region == "" {
		region = "default"
	}
	if c.accessKey != "" {
		return c.accessKey + "|" + region
	}
	if profile := ResolveProfile(); profile != "" {
		return profile + "|" + region
	}
	return region
}

func (c Context) String() string {
	secret := ""
	if c.secretKey != "" {
		secret = "****"
	}
	return fmt.Sprintf("region=%s accessKey=%s secretKey=%s", c.region, c.accessKey, secret)
}

func ResolveRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_DEFAULT_REGION"))
	}
	return region
}

// LoadConfig builds an SDK config for c. Static keys win over the default
// credential chain; the shared profile is only consulted without them.
func LoadConfig(ctx context.Context, c Context) (sdkaws.Config, error) {
	loadOpts := []func(*sdkconfig.LoadOptions) error{}
	if c.HasKeys() {
		loadOpts = append(loadOpts, sdkconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.accessKey, c.secretKey, ""),
		))
	} else if profile := ResolveProfile(); profile != "" {
		loadOpts = append(loadOpts, sdkconfig.WithSharedConfigProfile(profile))
	}
	if region := ResolveRegion(c.region); region != "" {
		loadOpts = append(loadOpts, sdkconfig.WithRegion(region))
	}
	cfg, err := sdkconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultRegion
	}
	return cfg, nil
}

func ResolveProfile() string {
	profile := strings.TrimSpace(os.Getenv("AWS_PROFILE"))
	if profile == "" {
		profile = strings.TrimSpace(os.Getenv("AWS_DEFAULT_PROFILE"))
	}
	return profile
}
