package internal

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Config is loaded from the environment (optionally via a .env file).
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	TokenSecret    string `env:"TOKEN_SECRET,required=true"`

	// Rate guard: at most RateCap chat events per connection per
	// RateWindow.
	RateWindow        time.Duration `env:"RATE_WINDOW,default=1m"`
	RateCap           int           `env:"RATE_CAP,default=50"`
	RateSweepInterval time.Duration `env:"RATE_SWEEP_INTERVAL,default=1m"`

	// Handshake admission throttle per remote address.
	HandshakeRPS   float64       `env:"HANDSHAKE_RPS,default=1"`
	HandshakeBurst int           `env:"HANDSHAKE_BURST,default=5"`
	HandshakeTTL   time.Duration `env:"HANDSHAKE_IDLE_TTL,default=10m"`

	HistoryLimit         int           `env:"HISTORY_LIMIT,default=100"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=5s"`

	// Optional moderation word list; one word per line.
	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// CharacterRune returns the single mask rune configured for the
// moderation censor.
func CharacterRune(str string) (rune, error) {
	if utf8.RuneCountInString(str) != 1 {
		return 0, fmt.Errorf("CHARACTER_REPLACEMENT must be a single character, got %q", str)
	}
	r, _ := utf8.DecodeRuneInString(str)
	return r, nil
}
