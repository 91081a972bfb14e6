package contextual

import (
	"context"

	"github.com/prowarehouse/macos-utilities/internal/config"
	"github.com/prowarehouse/macos-utilities/internal/system"
)

type key int

const (
	// productKey is used to set and retrieve context held values for Product.
	productKey key = iota
	// configKey is used to set and retrieve context held values for Config.
	configKey
)

// WithProduct extends the context to provide a Product.
func WithProduct(ctx context.Context, product *system.Product) context.Context {
	return context.WithValue(ctx, productKey, product)
}

// Product fetches the system's Product provided in ctx.
func Product(ctx context.Context) *system.Product {
	if val := ctx.Value(productKey); val != nil {
		if v, ok := val.(*system.Product); ok {
			return v
		}
		panic("incoherent context")
	}

	return nil
}

// WithConfig extends the context to provide the loaded Config.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// Config fetches the Config provided in ctx.
func Config(ctx context.Context) *config.Config {
	if val := ctx.Value(configKey); val != nil {
		if v, ok := val.(*config.Config); ok {
			return v
		}
		panic("incoherent context")
	}

	return nil
}
