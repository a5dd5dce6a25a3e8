package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/donpico/tienda/pkg/cart"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Load reads an optional .env file, then fills out from the environment.
// Only keys present in defaults are bound, so every field needs a default.
func Load(out any, defaults map[string]any) error {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Pricing holds the shipping rule as configured. Values are decimal strings.
type Pricing struct {
	FreeShippingThreshold string `mapstructure:"FREE_SHIPPING_THRESHOLD"`
	FlatShippingFee       string `mapstructure:"FLAT_SHIPPING_FEE"`
}

// PricingDefaults are the keys of Pricing with the storefront's values.
func PricingDefaults() map[string]any {
	def := cart.DefaultPolicy()
	return map[string]any{
		"FREE_SHIPPING_THRESHOLD": def.FreeShippingThreshold.String(),
		"FLAT_SHIPPING_FEE":       def.FlatShippingFee.String(),
	}
}

func (p Pricing) Policy() (cart.PricingPolicy, error) {
	policy := cart.DefaultPolicy()
	if p.FreeShippingThreshold != "" {
		d, err := decimal.NewFromString(p.FreeShippingThreshold)
		if err != nil {
			return policy, fmt.Errorf("free shipping threshold: %w", err)
		}
		policy.FreeShippingThreshold = d
	}
	if p.FlatShippingFee != "" {
		d, err := decimal.NewFromString(p.FlatShippingFee)
		if err != nil {
			return policy, fmt.Errorf("flat shipping fee: %w", err)
		}
		policy.FlatShippingFee = d
	}
	if policy.FreeShippingThreshold.IsNegative() || policy.FlatShippingFee.IsNegative() {
		return policy, errors.New("pricing policy values must not be negative")
	}
	return policy, nil
}

// Merge returns a new map with the entries of all maps, later ones winning.
func Merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
