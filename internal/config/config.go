// Package config loads the grid manager's bot roster from a JSON file and
// resolves each entry's relative string fields into a types.ResolvedBotConfig
// (spec §3 Configuration, §6 configuration file). Loading uses viper the way
// the teacher does, adapted from YAML to JSON since the data model specifies
// a JSON config file.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"dexgrid/internal/boterrors"
	"dexgrid/internal/chain"
	"dexgrid/internal/oracle"
	"dexgrid/internal/parse"
	"dexgrid/pkg/types"
)

// NativeAssetID is the object id of the chain's native fee token on a
// BitShares-style graphene chain ("1.3.0" is the core asset by chain-wide
// convention), used to decide which side of a pair owes the fee reservation
// (spec §4.3). The data model names the fee ledger field btsFeesOwed,
// naming the same convention.
const NativeAssetID = "1.3.0"

// Config is the top-level configuration: the bot roster plus the ambient
// node connection, logging, and status-API settings.
type Config struct {
	DryRun  bool              `mapstructure:"dryRun"`
	NodeURL string            `mapstructure:"nodeUrl"`
	Store   StoreConfig       `mapstructure:"store"`
	Logging LoggingConfig     `mapstructure:"logging"`
	API     APIConfig         `mapstructure:"api"`
	Bots    []types.BotConfig `mapstructure:"bots"`
}

// StoreConfig sets where snapshot data is persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"dataDir"`
}

// LoggingConfig controls slog's output format and level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the read-only status HTTP/WS server.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// Load reads config from a JSON file. GRID_CONFIG overrides the path and
// GRID_DRY_RUN forces dry-run across every bot, mirroring the teacher's
// POLY_* env override idiom.
func Load(path string) (*Config, error) {
	if env := os.Getenv("GRID_CONFIG"); env != "" {
		path = env
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("GRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dr := os.Getenv("GRID_DRY_RUN"); dr == "true" || dr == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks structural requirements that do not need a live chain
// connection (duplicate names, missing assets, out-of-range numeric
// fields). Relative-string resolution and asset lookups happen in Resolve.
func (c *Config) Validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("config: nodeUrl is required")
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("config: no bots configured")
	}
	seen := make(map[string]bool, len(c.Bots))
	for _, b := range c.Bots {
		if b.Name == "" {
			return fmt.Errorf("config: a bot entry is missing a name")
		}
		if seen[b.Name] {
			return fmt.Errorf("config: duplicate bot name %q", b.Name)
		}
		seen[b.Name] = true

		if b.AssetA == "" || b.AssetB == "" {
			return boterrors.NewConfigError(b.Name, fmt.Errorf("assetA and assetB are required"))
		}
		if b.IncrementPercent <= 0 || b.IncrementPercent >= 100 {
			return boterrors.NewConfigError(b.Name, fmt.Errorf("incrementPercent must be in (0,100)"))
		}
		if b.WeightDistribution.Buy < -1 || b.WeightDistribution.Buy > 2 ||
			b.WeightDistribution.Sell < -1 || b.WeightDistribution.Sell > 2 {
			return boterrors.NewConfigError(b.Name, fmt.Errorf("weightDistribution must be in [-1,2]"))
		}
		if b.ActiveOrders.Buy <= 0 || b.ActiveOrders.Sell <= 0 {
			return boterrors.NewConfigError(b.Name, fmt.Errorf("activeOrders.buy and activeOrders.sell must be > 0"))
		}
	}
	return nil
}

// Resolve resolves every active bot's relative string fields into a
// ResolvedBotConfig, looking up asset precisions on the given chain client.
// minPrice/maxPrice "Nx" forms are resolved against a one-time price
// estimate (the fixed marketPrice if given, else a single oracle read),
// after which the live reference price is re-derived on every bot startup
// and validated to still fall within [minPrice,maxPrice].
func (c *Config) Resolve(ctx context.Context, client chain.Client, o *oracle.Oracle) ([]types.ResolvedBotConfig, error) {
	resolved := make([]types.ResolvedBotConfig, 0, len(c.Bots))

	for _, b := range c.Bots {
		if !b.Active {
			continue
		}

		rc, err := c.resolveOne(ctx, client, o, b)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rc)
	}
	return resolved, nil
}

func (c *Config) resolveOne(ctx context.Context, client chain.Client, o *oracle.Oracle, b types.BotConfig) (types.ResolvedBotConfig, error) {
	assetA, err := client.LookupAsset(ctx, b.AssetA)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("looking up assetA %q: %w", b.AssetA, err))
	}
	assetB, err := client.LookupAsset(ctx, b.AssetB)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("looking up assetB %q: %w", b.AssetB, err))
	}

	priceMode, err := resolvePriceMode(b.PriceMode, b.MarketPrice)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, err)
	}

	var fixedMP *float64
	mpEstimate, err := parse.Absolute(b.MarketPrice)
	if err == nil {
		fixedMP = &mpEstimate
	} else {
		mpEstimate, err = o.Price(ctx, assetA, assetB, priceMode)
		if err != nil {
			return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("deriving initial reference price: %w", err))
		}
	}

	minPrice, err := parse.MinMax(b.MinPrice, mpEstimate, false)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("minPrice: %w", err))
	}
	maxPrice, err := parse.MinMax(b.MaxPrice, mpEstimate, true)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("maxPrice: %w", err))
	}
	if minPrice >= maxPrice {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, fmt.Errorf("minPrice %v must be < maxPrice %v", minPrice, maxPrice))
	}

	buyValue, buyIsPct, err := parse.BotFunds(b.BotFunds.Buy)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, err)
	}
	sellValue, sellIsPct, err := parse.BotFunds(b.BotFunds.Sell)
	if err != nil {
		return types.ResolvedBotConfig{}, boterrors.NewConfigError(b.Name, err)
	}

	botKey := b.BotKey
	if botKey == "" {
		botKey = b.Name
	}

	return types.ResolvedBotConfig{
		Name:                b.Name,
		AssetA:              assetA,
		AssetB:              assetB,
		Active:              b.Active,
		DryRun:              b.DryRun || c.DryRun,
		PreferredAccount:    b.PreferredAccount,
		BotKey:              botKey,
		MinPrice:            minPrice,
		MaxPrice:            maxPrice,
		IncrementPercent:    b.IncrementPercent,
		TargetSpreadPercent: b.TargetSpreadPercent,
		WeightDistribution:  b.WeightDistribution,
		BotFundsIsPercent:   map[types.Side]bool{types.Buy: buyIsPct, types.Sell: sellIsPct},
		BotFundsValue:       map[types.Side]float64{types.Buy: buyValue, types.Sell: sellValue},
		ActiveOrders:        b.ActiveOrders,
		PriceMode:           priceMode,
		NativeAssetID:       NativeAssetID,
		FixedMarketPrice:    fixedMP,
	}, nil
}

// resolvePriceMode derives the oracle fallback mode. An explicit priceMode
// field always wins; otherwise a literal "pool"/"market" marketPrice field
// selects the matching mode, and any numeric marketPrice defaults to "auto"
// (only consulted for resolving relative minPrice/maxPrice multipliers,
// since a numeric marketPrice pins the reference price itself).
func resolvePriceMode(priceMode, marketPrice string) (types.PriceMode, error) {
	switch strings.ToLower(strings.TrimSpace(priceMode)) {
	case "pool":
		return types.PriceModePool, nil
	case "market":
		return types.PriceModeMarket, nil
	case "auto":
		return types.PriceModeAuto, nil
	case "":
		// fall through to marketPrice-derived default
	default:
		return "", fmt.Errorf("priceMode must be one of pool|market|auto, got %q", priceMode)
	}

	switch {
	case parse.IsPool(marketPrice):
		return types.PriceModePool, nil
	case parse.IsMarket(marketPrice):
		return types.PriceModeMarket, nil
	default:
		return types.PriceModeAuto, nil
	}
}
