package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	shift "coatline/internal/shift/domain"
)

const envPrefix = "COATLINE"

// MQTT holds broker settings.
type MQTT struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ReconnectDelay time.Duration
	QoS            byte
}

// Redis holds cache settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Alarm holds notification settings.
type Alarm struct {
	NotifyTemplate string
	DedupeWindow   time.Duration
	NotifyTimeout  time.Duration
	NotifyOverMQTT bool
}

// LineConfig names a line and optional topic overrides.
type LineConfig struct {
	Code      string       `yaml:"code"`
	Name      string       `yaml:"name"`
	Telemetry string       `yaml:"telemetry"`
	Alarm     string       `yaml:"alarm"`
	Ack       string       `yaml:"ack"`
	Targets   []HourTarget `yaml:"targets"`
}

// HourTarget is the planned output of one hour of day.
type HourTarget struct {
	Hour int   `yaml:"hour"`
	Qty  int64 `yaml:"qty"`
}

// TargetMap indexes the line targets by hour of day.
func (l LineConfig) TargetMap() map[int]int64 {
	if len(l.Targets) == 0 {
		return nil
	}
	out := make(map[int]int64, len(l.Targets))
	for _, target := range l.Targets {
		out[target.Hour] = target.Qty
	}
	return out
}

// Seed is the plant reference data read from the YAML file.
type Seed struct {
	Lines   []LineConfig        `yaml:"lines"`
	Shifts  []shift.Window      `yaml:"shifts"`
	Breaks  []shift.BreakWindow `yaml:"breaks"`
	Ramadan struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"ramadan"`
}

// Config is the process configuration.
type Config struct {
	DatabaseURL      string
	Migrate          bool
	HTTPAddr         string
	JWTSecret        string
	Redis            Redis
	MQTT             MQTT
	Alarm            Alarm
	PublishInterval  time.Duration
	LockTimeout      time.Duration
	OperationTimeout time.Duration
	QueueSize        int
	DayBoundary      shift.ClockTime
	Location         *time.Location
	Ramadan          shift.DateRange
	Seed             Seed
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("migrate", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "coatline")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.reconnect_delay", "5s")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("engine.publish_interval", "1s")
	v.SetDefault("engine.lock_timeout", "3s")
	v.SetDefault("engine.operation_timeout", "5s")
	v.SetDefault("engine.queue_size", 256)
	v.SetDefault("plant.day_boundary", "08:00")
	v.SetDefault("plant.timezone", "Asia/Jakarta")
	v.SetDefault("plant.lines", "")
	v.SetDefault("alarm.notify_template", "")
	v.SetDefault("alarm.dedupe_window", "1m")
	v.SetDefault("alarm.notify_timeout", "5s")
	v.SetDefault("alarm.notify_over_mqtt", false)
}

// Load reads flags, the optional config file and COATLINE_* environment
// variables, in increasing order of precedence for scalar settings.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("coatline", pflag.ContinueOnError)
	fs.String("config", "", "path to the YAML config file")
	fs.String("http-addr", "", "listen address for the HTTP API")
	fs.Bool("migrate", false, "apply database migrations at startup")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if flag := fs.Lookup("http-addr"); flag.Changed {
		_ = v.BindPFlag("http.addr", flag)
	}
	if flag := fs.Lookup("migrate"); flag.Changed {
		_ = v.BindPFlag("migrate", flag)
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	var seed Seed
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return Config{}, fmt.Errorf("config: decode seed %s: %w", path, err)
		}
	}

	cfg := Config{
		DatabaseURL: v.GetString("database.url"),
		Migrate:     v.GetBool("migrate"),
		HTTPAddr:    v.GetString("http.addr"),
		JWTSecret:   v.GetString("auth.jwt_secret"),
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		MQTT: MQTT{
			BrokerURL:      v.GetString("mqtt.broker"),
			ClientID:       v.GetString("mqtt.client_id"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			ReconnectDelay: v.GetDuration("mqtt.reconnect_delay"),
		},
		Alarm: Alarm{
			NotifyTemplate: v.GetString("alarm.notify_template"),
			DedupeWindow:   v.GetDuration("alarm.dedupe_window"),
			NotifyTimeout:  v.GetDuration("alarm.notify_timeout"),
			NotifyOverMQTT: v.GetBool("alarm.notify_over_mqtt"),
		},
		PublishInterval:  v.GetDuration("engine.publish_interval"),
		LockTimeout:      v.GetDuration("engine.lock_timeout"),
		OperationTimeout: v.GetDuration("engine.operation_timeout"),
		QueueSize:        v.GetInt("engine.queue_size"),
		Seed:             seed,
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("PG_DSN")
	}

	qos := v.GetInt("mqtt.qos")
	if qos < 0 || qos > 2 {
		return Config{}, fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", qos)
	}
	cfg.MQTT.QoS = byte(qos)

	boundary, err := shift.ParseClockTime(v.GetString("plant.day_boundary"))
	if err != nil {
		return Config{}, fmt.Errorf("config: plant.day_boundary: %w", err)
	}
	cfg.DayBoundary = boundary

	loc, err := time.LoadLocation(v.GetString("plant.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("config: plant.timezone: %w", err)
	}
	cfg.Location = loc

	if len(cfg.Seed.Lines) == 0 {
		for _, code := range splitCSV(v.GetString("plant.lines")) {
			cfg.Seed.Lines = append(cfg.Seed.Lines, LineConfig{Code: code})
		}
	}
	if len(cfg.Seed.Shifts) == 0 {
		cfg.Seed.Shifts = DefaultShifts()
	}
	ramadan, err := parseRamadan(cfg.Seed.Ramadan.From, cfg.Seed.Ramadan.To)
	if err != nil {
		return Config{}, err
	}
	cfg.Ramadan = ramadan

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and seed invariants.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: database.url (COATLINE_DATABASE_URL or PG_DSN) is required")
	}
	if len(c.Seed.Lines) == 0 {
		return errors.New("config: at least one line is required")
	}
	seen := make(map[string]struct{}, len(c.Seed.Lines))
	for _, line := range c.Seed.Lines {
		if line.Code == "" {
			return errors.New("config: line with empty code")
		}
		if _, dup := seen[line.Code]; dup {
			return fmt.Errorf("config: line %s configured twice", line.Code)
		}
		seen[line.Code] = struct{}{}
		for _, target := range line.Targets {
			if target.Hour < 0 || target.Hour > 23 || target.Qty < 0 {
				return fmt.Errorf("config: line %s has an invalid target for hour %d", line.Code, target.Hour)
			}
		}
	}
	for _, w := range c.Seed.Shifts {
		if _, err := shift.ParseScheduleType(string(w.Schedule)); err != nil {
			return fmt.Errorf("config: shift %s: %w", w.Code, err)
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Schedule builds the plant schedule. Windows from durable storage take
// precedence over the seed when present.
func (c Config) Schedule(stored []shift.Window) shift.Schedule {
	windows := c.Seed.Shifts
	if len(stored) > 0 {
		windows = stored
	}
	return shift.Schedule{
		Windows:  windows,
		Breaks:   c.Seed.Breaks,
		Ramadan:  c.Ramadan,
		Boundary: c.DayBoundary,
		Location: c.Location,
	}
}

// DefaultShifts is the two-shift pattern used when no shifts are configured.
func DefaultShifts() []shift.Window {
	return []shift.Window{
		{Schedule: shift.ScheduleNormal, Code: "S1", Start: shift.MustClockTime("08:00"), End: shift.MustClockTime("16:00")},
		{Schedule: shift.ScheduleNormal, Code: "S2", Start: shift.MustClockTime("16:00"), End: shift.MustClockTime("00:00"), CrossesMidnight: true},
		{Schedule: shift.ScheduleRamadan, Code: "S1", Start: shift.MustClockTime("08:00"), End: shift.MustClockTime("15:00")},
		{Schedule: shift.ScheduleRamadan, Code: "S2", Start: shift.MustClockTime("15:00"), End: shift.MustClockTime("22:00")},
	}
}

func parseRamadan(from, to string) (shift.DateRange, error) {
	if from == "" && to == "" {
		return shift.DateRange{}, nil
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return shift.DateRange{}, fmt.Errorf("config: ramadan.from must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return shift.DateRange{}, fmt.Errorf("config: ramadan.to must be YYYY-MM-DD: %w", err)
	}
	if end.Before(start) {
		return shift.DateRange{}, errors.New("config: ramadan.to is before ramadan.from")
	}
	return shift.DateRange{From: start, To: end}, nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
