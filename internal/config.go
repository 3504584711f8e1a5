package internal

import (
	"chat-relay/domain/chat"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Config is the relay server configuration, read from the environment.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	HTTPPort int    `env:"HTTP_PORT,default=8081"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	QueueCapacity    int    `env:"QUEUE_CAPACITY,default=0"`
	OverflowPolicy   string `env:"OVERFLOW_POLICY,default=unbounded"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=1000"`
	CensoredWords    string `env:"CENSORED_WORDS"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	IndexBufferSize    int           `env:"INDEX_BUFFER_SIZE,default=1024"`
	IndexBatchSize     int           `env:"INDEX_BATCH_SIZE,default=64"`
	IndexFlushInterval time.Duration `env:"INDEX_FLUSH_INTERVAL,default=1s"`

	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval time.Duration `env:"PING_INTERVAL,default=30s"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=5s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	LogFile         string        `env:"LOG_FILE"`
	DebugPort       int           `env:"DEBUG_PORT,default=0"`
	InspectPort     int           `env:"INSPECT_PORT,default=8082"`
}

// Backpressure builds the per-session queue policy.
func (c Config) Backpressure() (chat.Backpressure, error) {
	if c.QueueCapacity < 0 {
		return chat.Backpressure{}, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	policy, err := chat.ParseOverflowPolicy(c.OverflowPolicy)
	if err != nil {
		return chat.Backpressure{}, err
	}
	return chat.Backpressure{Capacity: c.QueueCapacity, Policy: policy}, nil
}

// Words splits the comma separated CENSORED_WORDS list.
func (c Config) Words() []string {
	words := lo.Map(strings.Split(c.CensoredWords, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	})
	return lo.Compact(words)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
