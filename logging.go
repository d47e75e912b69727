package tempuscache

import "github.com/rs/zerolog"

// defaultLogger is silent: a Cache constructed without WithLogger never
// writes anything.
func defaultLogger() zerolog.Logger {
	return zerolog.Nop()
}
