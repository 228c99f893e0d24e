// Package config loads daemon settings from defaults, a YAML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/reflex-trigger/internal/gpio"
)

// EnvPrefix is prepended to every environment key (REFLEX_GPIO_CHIP, ...).
const EnvPrefix = "REFLEX"

// Config is the full daemon configuration.
type Config struct {
	GPIO    GPIOConfig `mapstructure:"gpio"`
	MQTT    MQTTConfig `mapstructure:"mqtt"`
	HTTP    HTTPConfig `mapstructure:"http"`
	Log     LogConfig  `mapstructure:"log"`
	Console bool       `mapstructure:"console"`
}

// GPIOConfig selects the chip and line offsets. Routing is not configurable.
type GPIOConfig struct {
	Chip   string `mapstructure:"chip"`
	Detect []int  `mapstructure:"detect"`
	Hit    []int  `mapstructure:"hit"`
	LED    int    `mapstructure:"led"`
}

// MQTTConfig configures telemetry. An empty broker disables it.
type MQTTConfig struct {
	Broker    string        `mapstructure:"broker"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// HTTPConfig configures the status page. An empty address disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"chip":        "gpio.chip",
	"detect-pins": "gpio.detect",
	"hit-pins":    "gpio.hit",
	"led-pin":     "gpio.led",
	"broker":      "mqtt.broker",
	"heartbeat":   "mqtt.heartbeat",
	"http":        "http.addr",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"console":     "console",
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	p := gpio.DefaultPins()
	return map[string]any{
		"gpio.chip":      p.Chip,
		"gpio.detect":    p.Detect[:],
		"gpio.hit":       p.Hit[:],
		"gpio.led":       p.LED,
		"mqtt.broker":    "",
		"mqtt.heartbeat": 15 * time.Minute,
		"http.addr":      "",
		"log.level":      "info",
		"log.format":     "console",
		"console":        true,
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	p := gpio.DefaultPins()
	fs.String("chip", p.Chip, "GPIO chip name")
	fs.IntSlice("detect-pins", p.Detect[:], "line offsets of the three sense inputs")
	fs.IntSlice("hit-pins", p.Hit[:], "line offsets of the three hit outputs")
	fs.Int("led-pin", p.LED, "line offset of the indicator")
	fs.String("broker", "", "MQTT broker address for telemetry (empty to disable)")
	fs.Duration("heartbeat", 15*time.Minute, "MQTT heartbeat interval (0 to disable)")
	fs.String("http", "", "HTTP status address (empty to disable)")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error, off)")
	fs.String("log-format", "console", `log format ("console" or "json")`)
	fs.Bool("console", true, "print D1/D2/D3 on stdout for each confirmed detection")
}

// Load reads the configuration. path names an explicit config file; when
// empty, reflex-trigger.yaml is looked up in /etc/reflex-trigger and the
// working directory and is optional. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reflex-trigger")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/reflex-trigger")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the line assignment and intervals.
func (c Config) Validate() error {
	if c.GPIO.Chip == "" {
		return errors.New("gpio.chip must be set")
	}
	if len(c.GPIO.Detect) != gpio.NumDetect {
		return fmt.Errorf("gpio.detect needs %d offsets, got %d", gpio.NumDetect, len(c.GPIO.Detect))
	}
	if len(c.GPIO.Hit) != gpio.NumDetect {
		return fmt.Errorf("gpio.hit needs %d offsets, got %d", gpio.NumDetect, len(c.GPIO.Hit))
	}

	seen := map[int]string{}
	check := func(name string, offset int) error {
		if offset < 0 {
			return fmt.Errorf("%s: negative line offset %d", name, offset)
		}
		if other, ok := seen[offset]; ok {
			return fmt.Errorf("%s: line %d already used by %s", name, offset, other)
		}
		seen[offset] = name
		return nil
	}
	for i, o := range c.GPIO.Detect {
		if err := check(fmt.Sprintf("gpio.detect[%d]", i), o); err != nil {
			return err
		}
	}
	for i, o := range c.GPIO.Hit {
		if err := check(fmt.Sprintf("gpio.hit[%d]", i), o); err != nil {
			return err
		}
	}
	if err := check("gpio.led", c.GPIO.LED); err != nil {
		return err
	}

	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat)
	}
	return nil
}

// Pins converts the GPIO section into gpio.Pins. Call after Validate.
func (c Config) Pins() gpio.Pins {
	p := gpio.Pins{Chip: c.GPIO.Chip, LED: c.GPIO.LED}
	copy(p.Detect[:], c.GPIO.Detect)
	copy(p.Hit[:], c.GPIO.Hit)
	return p
}
