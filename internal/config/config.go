// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	License       string `mapstructure:"license"`
	KeygenAccount string `mapstructure:"keygen_account"`
	KeygenProduct string `mapstructure:"keygen_product"`
	KeygenToken   string `mapstructure:"keygen_token"`

	RPCList      []string `mapstructure:"rpc_list"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	RPCDelay     int      `mapstructure:"rpc_delay"`
	RPCTimeout   int      `mapstructure:"rpc_timeout"`
	Retries      int      `mapstructure:"retries"`

	// Deployer is the account whose log mentions are subscribed to.
	Deployer     string `mapstructure:"deployer"`
	LaunchMarker string `mapstructure:"launch_marker"`
	TestMarker   string `mapstructure:"test_marker"`
	Workers      int    `mapstructure:"workers"`
	EventBuffer  int    `mapstructure:"event_buffer"`

	Gateways         []string `mapstructure:"gateways"`
	MetadataTimeout  int      `mapstructure:"metadata_timeout"`
	MetadataRetries  int      `mapstructure:"metadata_retries"`
	MetadataRetryGap int      `mapstructure:"metadata_retry_delay"`

	ReputationURL     string  `mapstructure:"reputation_url"`
	ReputationAPIKey  string  `mapstructure:"reputation_api_key"`
	ReputationTimeout int     `mapstructure:"reputation_timeout"`
	MinScore          float64 `mapstructure:"min_score"`

	BlockEngineURL string `mapstructure:"block_engine_url"`
	MirrorToRPC    bool   `mapstructure:"mirror_to_rpc"`

	NotifyURL     string `mapstructure:"notify_url"`
	TelegramToken string `mapstructure:"telegram_token"`
	NotifyTimeout int    `mapstructure:"notify_timeout"`

	ListenAddr string `mapstructure:"listen_addr"`

	SaleInterval      int `mapstructure:"sale_interval"`
	ThresholdInterval int `mapstructure:"threshold_interval"`
	CallTimeout       int `mapstructure:"call_timeout"`
	BalanceRetries    int `mapstructure:"balance_retries"`
	BalanceRetryDelay int `mapstructure:"balance_retry_delay"`

	DefaultTip         float64 `mapstructure:"default_tip"`
	DefaultSlippage    float64 `mapstructure:"default_slippage"`
	ComputeUnitLimit   uint32  `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice   uint64  `mapstructure:"compute_unit_price"`
	MaxFeePeriods      uint16  `mapstructure:"max_fee_periods"`
	MinReductionFactor uint64  `mapstructure:"min_reduction_factor"`
	PlatformFeeWallet  string  `mapstructure:"platform_fee_wallet"`
	PlatformFeeBps     uint16  `mapstructure:"platform_fee_bps"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultDeployer           = "5qWya6UjwWnGVhdSBL3hyZ7B45jbk6Byt1hwd7ohEGXE"
	DefaultLaunchMarker       = "InitializeVirtualPoolWithSplToken"
	DefaultTestMarker         = "test"
	DefaultListenAddr         = "127.0.0.1:3000"
	DefaultRPCDelay           = 100
	DefaultRPCTimeout         = 10000
	DefaultRetries            = 3
	DefaultWorkers            = 5
	DefaultEventBuffer        = 256
	DefaultMetadataTimeout    = 10000
	DefaultMetadataRetries    = 3
	DefaultMetadataRetryGap   = 250
	DefaultReputationTimeout  = 5000
	DefaultMinScore           = 80
	DefaultNotifyTimeout      = 5000
	DefaultSaleInterval       = 1000
	DefaultThresholdInterval  = 3000
	DefaultCallTimeout        = 10000
	DefaultBalanceRetries     = 3
	DefaultBalanceRetryDelay  = 500
	DefaultTip                = 0.0008
	DefaultSlippage           = 10
	DefaultComputeUnitPrice   = 1_000_000
	DefaultComputeUnitLimit   = 200_000
	DefaultMaxFeePeriods      = 37
	DefaultMinReductionFactor = 822
	DefaultLogFile            = "sniper.log"
)

// DefaultGateways are the IPFS mirrors raced for creator metadata.
var DefaultGateways = []string{
	"https://%s.ipfs.dweb.link",
	"https://ipfs.io/ipfs/%s",
	"https://gateway.pinata.cloud/ipfs/%s",
	"https://gray-real-deer-511.mypinata.cloud/ipfs/%s",
}

// LoadConfig reads path (any format viper understands) and applies SNIPER_*
// environment overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := map[string]interface{}{
		"deployer":             DefaultDeployer,
		"launch_marker":        DefaultLaunchMarker,
		"test_marker":          DefaultTestMarker,
		"listen_addr":          DefaultListenAddr,
		"rpc_delay":            DefaultRPCDelay,
		"rpc_timeout":          DefaultRPCTimeout,
		"retries":              DefaultRetries,
		"workers":              DefaultWorkers,
		"event_buffer":         DefaultEventBuffer,
		"gateways":             DefaultGateways,
		"metadata_timeout":     DefaultMetadataTimeout,
		"metadata_retries":     DefaultMetadataRetries,
		"metadata_retry_delay": DefaultMetadataRetryGap,
		"reputation_timeout":   DefaultReputationTimeout,
		"min_score":            DefaultMinScore,
		"notify_timeout":       DefaultNotifyTimeout,
		"sale_interval":        DefaultSaleInterval,
		"threshold_interval":   DefaultThresholdInterval,
		"call_timeout":         DefaultCallTimeout,
		"balance_retries":      DefaultBalanceRetries,
		"balance_retry_delay":  DefaultBalanceRetryDelay,
		"default_tip":          DefaultTip,
		"default_slippage":     DefaultSlippage,
		"compute_unit_limit":   DefaultComputeUnitLimit,
		"compute_unit_price":   DefaultComputeUnitPrice,
		"max_fee_periods":      DefaultMaxFeePeriods,
		"min_reduction_factor": DefaultMinReductionFactor,
		"log_file":             DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
		// every known key can be overridden from the environment
		_ = v.BindEnv(key)
	}

	for _, key := range []string{
		"license", "keygen_account", "keygen_product", "keygen_token",
		"rpc_list", "websocket_url", "reputation_url", "reputation_api_key",
		"block_engine_url", "mirror_to_rpc", "notify_url", "telegram_token",
		"platform_fee_wallet", "platform_fee_bps", "debug_logging",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// lists from the environment arrive comma separated
	cfg.RPCList = cleanList(cfg.RPCList)
	cfg.Gateways = cleanList(cfg.Gateways)

	return &cfg, validateConfig(&cfg)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.WebSocketURL == "" {
		return errors.New("websocket_url is empty")
	}
	if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.Deployer); err != nil {
		return fmt.Errorf("invalid deployer: %w", err)
	}
	if cfg.PlatformFeeWallet != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.PlatformFeeWallet); err != nil {
			return fmt.Errorf("invalid platform_fee_wallet: %w", err)
		}
	}
	if cfg.PlatformFeeBps > 10_000 {
		return errors.New("platform_fee_bps must not exceed 10000")
	}
	if len(cfg.Gateways) == 0 {
		return errors.New("gateways is empty")
	}
	for _, gw := range cfg.Gateways {
		if !strings.Contains(gw, "%s") {
			return fmt.Errorf("gateway %q has no %%s placeholder", gw)
		}
	}
	if cfg.BlockEngineURL != "" {
		if err := validateURLWithCache(cfg.BlockEngineURL, "https"); err != nil {
			return errors.New("block engine URL must use HTTPS")
		}
	}
	if cfg.License != "" && (cfg.KeygenAccount == "" || cfg.KeygenProduct == "") {
		return errors.New("license requires keygen_account and keygen_product")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if cfg.RPCDelay < 0 {
		return errors.New("invalid rpc_delay")
	}
	if cfg.Retries < 0 || cfg.MetadataRetries < 0 || cfg.BalanceRetries < 0 {
		return errors.New("invalid retries count")
	}
	for name, ms := range map[string]int{
		"rpc_timeout":        cfg.RPCTimeout,
		"metadata_timeout":   cfg.MetadataTimeout,
		"reputation_timeout": cfg.ReputationTimeout,
		"notify_timeout":     cfg.NotifyTimeout,
		"sale_interval":      cfg.SaleInterval,
		"threshold_interval": cfg.ThresholdInterval,
		"call_timeout":       cfg.CallTimeout,
	} {
		if ms <= 0 {
			return fmt.Errorf("invalid %s", name)
		}
	}
	if cfg.DefaultTip < 0 {
		return errors.New("invalid default_tip")
	}
	if cfg.DefaultSlippage < 0 || cfg.DefaultSlippage > 100 {
		return errors.New("invalid default_slippage")
	}
	if cfg.MinScore < 0 {
		return errors.New("invalid min_score")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
