// Package config loads environment variables into tagged structs.
//
// Each configuration type is parsed at most once per process; later calls
// for the same type return the cached value. A .env file in the working
// directory is loaded on first use when present.
//
//	type ProviderConfig struct {
//		BaseURL string `env:"GOTRUE_URL,required"`
//		AnonKey string `env:"GOTRUE_ANON_KEY,required"`
//	}
//
//	var cfg ProviderConfig
//	if err := config.Load(&cfg); err != nil { ... }
package config
