package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournalHandler is a slog.Handler that writes records to the systemd
// journal. Attributes become journal fields, so
// `journalctl -t lwalight SOURCE=lwa1-summary` selects one source.
type JournalHandler struct {
	level  slog.Leveler
	prefix string // upper-cased group path, with trailing underscore
	fields map[string]string

	send     func(message string, priority journal.Priority, vars map[string]string) error
	sendFail *sync.Once
}

// NewJournalHandler creates a journal handler enabled at level and above.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:    level,
		fields:   map[string]string{"SYSLOG_IDENTIFIER": Identifier},
		send:     journal.Send,
		sendFail: &sync.Once{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends the record. MESSAGE and PRIORITY are set by journal.Send.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	vars := make(map[string]string, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		vars[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		putAttr(vars, h.prefix, a)
		return true
	})

	if err := h.send(r.Message, journalPriority(r.Level), vars); err != nil {
		h.sendFail.Do(func() {
			fmt.Fprintf(os.Stderr, "lwalight: journal unavailable, further journal errors suppressed: %v\n", err)
		})
		return err
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		putAttr(c.fields, c.prefix, a)
	}
	return c
}

// WithGroup returns a handler that prefixes later attribute keys with name.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix += fieldName(name) + "_"
	return c
}

func (h *JournalHandler) clone() *JournalHandler {
	fields := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		fields[k] = v
	}
	return &JournalHandler{
		level:    h.level,
		prefix:   h.prefix,
		fields:   fields,
		send:     h.send,
		sendFail: h.sendFail,
	}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func putAttr(vars map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += fieldName(a.Key) + "_"
		}
		for _, g := range a.Value.Group() {
			putAttr(vars, inner, g)
		}
		return
	}

	vars[prefix+fieldName(a.Key)] = fieldValue(a.Value)
}

func fieldValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.String()
	}
}

// fieldName turns an attribute key into a valid journal field name:
// upper case letters, digits and underscores, not starting with an
// underscore or digit.
func fieldName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || name[0] == '_' || (name[0] >= '0' && name[0] <= '9') {
		name = "F" + name
	}
	return name
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
