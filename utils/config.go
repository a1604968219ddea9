package utils

import (
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FlagConfig          = "config"
	FlagEndpoint        = "endpoint"
	FlagChain           = "chain"
	FlagChainID         = "chain-id"
	FlagFrom            = "from"
	FlagTo              = "to"
	FlagPrivateKey      = "private-key"
	FlagPrivateKeyFile  = "private-key-file"
	FlagValue           = "value"
	FlagGasLimit        = "gas-limit"
	FlagGasPrice        = "gas-price-gwei"
	FlagDataSize        = "data-size"
	FlagInterval        = "interval"
	FlagCount           = "count"
	FlagNonceBlock      = "nonce-block"
	FlagMaxFailures     = "max-consecutive-failures"
	FlagWaitForNode     = "wait-for-node"
	FlagRequestTimeout  = "request-timeout"
	FlagMaxTPS          = "max-tps"
	FlagTxHashFile      = "tx-hash-file"
	FlagReportInterval  = "report-interval"
	FlagEstimateGas     = "estimate-gas"
	FlagLogLevel        = "log-level"
	FlagLogFormat       = "log-format"
	EnvPrefix           = "TXLOADGEN"
	MaxDataSizeKB       = 64
	NonceBlockLatest    = "latest"
	NonceBlockPending   = "pending"
	legacyDelayMsEnvVar = "DELAY_MS"
)

// Variables understood without the TXLOADGEN_ prefix, kept for existing .env files
var legacyEnv = map[string]string{
	FlagEndpoint:   "ETH_RPC_URL",
	FlagPrivateKey: "PRIVATE_KEY",
	FlagTo:         "TO_ADDRESS",
	FlagValue:      "TX_VALUE",
	FlagGasPrice:   "GAS_PRICE",
}

// Config holds everything a load run needs
type Config struct {
	Endpoint               string        `mapstructure:"endpoint"`
	Chain                  string        `mapstructure:"chain"`
	ChainID                uint64        `mapstructure:"chain-id"`
	From                   string        `mapstructure:"from"`
	To                     string        `mapstructure:"to"`
	PrivateKey             string        `mapstructure:"private-key"`
	PrivateKeyFile         string        `mapstructure:"private-key-file"`
	Value                  string        `mapstructure:"value"`
	GasLimit               uint64        `mapstructure:"gas-limit"`
	GasPriceGwei           string        `mapstructure:"gas-price-gwei"`
	DataSizeKB             int           `mapstructure:"data-size"`
	Interval               time.Duration `mapstructure:"interval"`
	Count                  uint64        `mapstructure:"count"`
	NonceBlock             string        `mapstructure:"nonce-block"`
	MaxConsecutiveFailures int           `mapstructure:"max-consecutive-failures"`
	WaitForNode            bool          `mapstructure:"wait-for-node"`
	RequestTimeout         time.Duration `mapstructure:"request-timeout"`
	MaxTPS                 float64       `mapstructure:"max-tps"`
	TxHashFile             string        `mapstructure:"tx-hash-file"`
	ReportInterval         time.Duration `mapstructure:"report-interval"`
	EstimateGas            bool          `mapstructure:"estimate-gas"`
	LogLevel               string        `mapstructure:"log-level"`
	LogFormat              string        `mapstructure:"log-format"`

	// ChainName is set by ResolveEndpoint for display
	ChainName string `mapstructure:"-"`
}

// RegisterFlags defines the run flags on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "f", "", "Path to a config file (json, yaml or toml)")
	fs.StringP(FlagEndpoint, "e", "", "JSON-RPC endpoint of the node (http, https, ws, wss or IPC path)")
	fs.String(FlagChain, "", "Chain from the built-in catalog (key, name or menu number)")
	fs.Uint64(FlagChainID, 0, "Chain id used for signing, queried from the node when 0")
	fs.String(FlagFrom, "", "Sender address, derived from the private key when empty")
	fs.String(FlagTo, "", "Recipient address, defaults to the sender")
	fs.String(FlagPrivateKey, "", "Hex private key of the sender (prefer the environment or --private-key-file)")
	fs.String(FlagPrivateKeyFile, "", "File holding the hex private key of the sender")
	fs.String(FlagValue, "1", "Transfer value in wei")
	fs.Uint64(FlagGasLimit, 2000000, "Gas limit of each transfer")
	fs.String(FlagGasPrice, "50", "Gas price in gwei")
	fs.Int(FlagDataSize, 0, "Random calldata size in KB (0-64)")
	fs.Duration(FlagInterval, 500*time.Millisecond, "Pause between iterations")
	fs.Uint64P(FlagCount, "n", 0, "Number of iterations to run, 0 runs until interrupted")
	fs.String(FlagNonceBlock, NonceBlockLatest, "Block tag used for the nonce query (latest or pending)")
	fs.Int(FlagMaxFailures, 10, "Consecutive failed iterations before giving up, 0 never gives up")
	fs.Bool(FlagWaitForNode, false, "Retry the connectivity probe with backoff before each iteration")
	fs.Duration(FlagRequestTimeout, 10*time.Second, "Timeout of each JSON-RPC request")
	fs.Float64(FlagMaxTPS, 0, "Ceiling on submissions per second, 0 means no ceiling")
	fs.String(FlagTxHashFile, "", "Append submitted transaction hashes to this file")
	fs.Duration(FlagReportInterval, 0, "Print submission statistics at this interval, 0 disables")
	fs.Bool(FlagEstimateGas, false, "Estimate the gas limit once at startup instead of using --gas-limit")
	fs.String(FlagLogLevel, "info", "Log level (trace, debug, info, warn, error, crit)")
	fs.String(FlagLogFormat, "terminal", "Log format (terminal or json)")
}

// LoadConfig merges .env, config file, environment and flags, in increasing precedence
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "failed to bind flags")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, errors.Wrapf(err, "failed to bind env for %s", key)
		}
	}

	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	if err := applyLegacyDelay(v, fs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// DELAY_MS is a bare millisecond count, which viper would read as nanoseconds
func applyLegacyDelay(v *viper.Viper, fs *pflag.FlagSet) error {
	raw, ok := os.LookupEnv(legacyDelayMsEnvVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	if f := fs.Lookup(FlagInterval); f != nil && f.Changed {
		return nil
	}
	if strings.TrimSpace(os.Getenv(envName(FlagInterval))) != "" {
		return nil
	}
	ms, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid %s value %q", legacyDelayMsEnvVar, raw)
	}
	v.Set(FlagInterval, time.Duration(ms)*time.Millisecond)
	return nil
}

// ResolveEndpoint fills Endpoint from the chain catalog when it was not given
// directly. With interactive set, a missing selection is asked for.
func (c *Config) ResolveEndpoint(chains []Chain, interactive bool) error {
	if c.Endpoint != "" {
		if c.ChainName == "" {
			c.ChainName = "Custom endpoint"
		}
		return nil
	}

	var chain Chain
	switch {
	case c.Chain != "":
		var ok bool
		chain, ok = LookupChain(chains, c.Chain)
		if !ok {
			return errors.Errorf("unknown chain %q", c.Chain)
		}
	case interactive:
		var err error
		chain, err = SelectChain(chains)
		if err != nil {
			return errors.Wrap(err, "chain selection failed")
		}
	default:
		return errors.New("an endpoint (--endpoint) or a chain (--chain) is required")
	}

	c.Endpoint = chain.RPC()
	c.ChainName = chain.Name
	return nil
}

// Validate checks every field that can be checked without touching the network
func (c *Config) Validate() error {
	if err := ValidateEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.From != "" && !common.IsHexAddress(c.From) {
		return errors.Errorf("invalid sender address %q", c.From)
	}
	if c.To != "" && !common.IsHexAddress(c.To) {
		return errors.Errorf("invalid recipient address %q", c.To)
	}
	if _, err := c.ValueWei(); err != nil {
		return err
	}
	if _, err := c.GasPrice(); err != nil {
		return err
	}
	if c.GasLimit == 0 && !c.EstimateGas {
		return errors.New("gas limit must be greater than 0")
	}
	if c.DataSizeKB < 0 || c.DataSizeKB > MaxDataSizeKB {
		return errors.Errorf("data size must be between 0 and %d KB, got %d", MaxDataSizeKB, c.DataSizeKB)
	}
	if c.Interval < 0 {
		return errors.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if c.NonceBlock != NonceBlockLatest && c.NonceBlock != NonceBlockPending {
		return errors.Errorf("nonce block must be %q or %q, got %q", NonceBlockLatest, NonceBlockPending, c.NonceBlock)
	}
	if c.MaxConsecutiveFailures < 0 {
		return errors.Errorf("max consecutive failures must not be negative, got %d", c.MaxConsecutiveFailures)
	}
	if c.RequestTimeout < 0 {
		return errors.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.MaxTPS < 0 {
		return errors.Errorf("max tps must not be negative, got %v", c.MaxTPS)
	}
	if c.ReportInterval < 0 {
		return errors.Errorf("report interval must not be negative, got %s", c.ReportInterval)
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		return errors.Errorf("unknown log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "terminal", "json":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// ValueWei returns the transfer value
func (c *Config) ValueWei() (*big.Int, error) {
	return ParseWei(c.Value)
}

// GasPrice returns the gas price in wei
func (c *Config) GasPrice() (*big.Int, error) {
	return ParseGasPriceGwei(c.GasPriceGwei)
}

// ValidateEndpoint accepts http(s) and ws(s) URLs and IPC socket paths
func ValidateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("endpoint is required")
	}
	if !strings.Contains(raw, "://") && (filepath.IsAbs(raw) || strings.HasSuffix(raw, ".ipc")) {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid endpoint %q", raw)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.Errorf("unsupported endpoint scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return errors.Errorf("endpoint %q has no host", raw)
	}
	return nil
}

// ParseWei parses a non-negative decimal wei amount
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid wei amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, errors.Errorf("wei amount must not be negative, got %s", s)
	}
	return v, nil
}

// ParseGasPriceGwei converts a decimal gwei amount such as "50" or "0.5" to wei.
// Fractions below one wei are rejected.
func ParseGasPriceGwei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	gwei, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errors.Errorf("invalid gas price %q", s)
	}
	if gwei.Sign() < 0 {
		return nil, errors.Errorf("gas price must not be negative, got %s", s)
	}

	wei := new(big.Rat).Mul(gwei, new(big.Rat).SetInt64(params.GWei))
	if !wei.IsInt() {
		return nil, errors.Errorf("gas price %s gwei is not a whole number of wei", s)
	}
	return new(big.Int).Set(wei.Num()), nil
}
