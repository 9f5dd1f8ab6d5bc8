package inference

// Config holds every knob the engine reads. It is passed explicitly at
// construction so runs with different thresholds or locales stay reproducible.
type Config struct {
	// VarcharThreshold is the longest observed value (in characters) that
	// still produces VARCHAR(n); longer columns become TEXT. <= 0 means 255.
	VarcharThreshold int `yaml:"varchar_threshold" env:"SQLCONV_VARCHAR_THRESHOLD" env-default:"255"`

	// TrueTokens and FalseTokens are matched case-insensitively after trimming.
	TrueTokens  []string `yaml:"true_tokens" env:"SQLCONV_TRUE_TOKENS" env-separator:","`
	FalseTokens []string `yaml:"false_tokens" env:"SQLCONV_FALSE_TOKENS" env-separator:","`

	// TimestampLayouts are Go time layouts tried in order.
	TimestampLayouts []string `yaml:"timestamp_layouts"`

	// AllText forces every column to nullable TEXT.
	AllText bool `yaml:"all_text" env:"SQLCONV_ALL_TEXT" env-default:"false"`
}

// DefaultVarcharThreshold is used when Config.VarcharThreshold is unset.
const DefaultVarcharThreshold = 255

// DefaultTrueTokens and DefaultFalseTokens cover English and Portuguese
// spellings.
var (
	DefaultTrueTokens  = []string{"true", "1", "yes", "sim"}
	DefaultFalseTokens = []string{"false", "0", "no", "não"}
)

// DefaultTimestampLayouts lists ISO forms first, then day-first forms.
// Month-first layouts are deliberately absent: 02/01/2006 is ambiguous and
// the day-first reading wins.
var DefaultTimestampLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"02/01/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"02.01.2006",
	"02.01.2006 15:04:05",
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		VarcharThreshold: DefaultVarcharThreshold,
		TrueTokens:       append([]string(nil), DefaultTrueTokens...),
		FalseTokens:      append([]string(nil), DefaultFalseTokens...),
		TimestampLayouts: append([]string(nil), DefaultTimestampLayouts...),
	}
}

// withDefaults fills unset fields. Token and layout lists are only defaulted
// when nil so an explicitly empty list disables that rule.
func (c Config) withDefaults() Config {
	if c.VarcharThreshold <= 0 {
		c.VarcharThreshold = DefaultVarcharThreshold
	}
	if c.TrueTokens == nil {
		c.TrueTokens = DefaultTrueTokens
	}
	if c.FalseTokens == nil {
		c.FalseTokens = DefaultFalseTokens
	}
	if c.TimestampLayouts == nil {
		c.TimestampLayouts = DefaultTimestampLayouts
	}
	return c
}
