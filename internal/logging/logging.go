// Package logging builds the daemon's slog logger: a text handler on the
// terminal and the systemd journal when running as a service.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

type journalFactory func(*slogjournal.Options) (*slogjournal.Handler, error)

// New returns a logger writing to w, and to the journal when available.
// Under systemd the terminal handler is skipped since stderr already lands in
// the journal.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return newLogger(w, level, isSystemdService(), slogjournal.NewHandler)
}

func newLogger(w io.Writer, level slog.Leveler, service bool, journal journalFactory) *slog.Logger {
	var handlers []slog.Handler

	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if !service {
		handlers = append(handlers, text)
	}

	jh, err := journal(&slogjournal.Options{
		Level:        level,
		ReplaceGroup: toJournalKey,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = toJournalKey(a.Key)
			return a
		},
	})
	if err != nil {
		if service {
			handlers = append(handlers, text)
		}
	} else {
		handlers = append(handlers, jh)
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	if err != nil {
		logger.Warn("systemd journal unavailable", "err", err)
	}
	return logger
}

// ParseLevel maps a flag value to a level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// journal field names must be upper case ASCII letters, digits and underscores
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.SplitN(strings.TrimSpace(string(content)), ":", 3)
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
