// Package logging provides the node's slog setup: a compact colorized
// handler that knows the consensus vocabulary. Slot, phase and
// checkpoint fields are pulled to the front of every line in a fixed
// order so that scanning a devnet log reads as a timeline of the chain,
// not a soup of key=value pairs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Component names used as log source tags.
const (
	CompNode      = "node"
	CompValidator = "validator"
	CompConsensus = "consensus"
	CompGHOST     = "ghost"
	CompNetwork   = "network"
	CompGossip    = "gossip"
	CompReqResp   = "reqresp"
	CompMetrics   = "metrics"
)

// ANSI color codes.
const (
	reset   = "\033[0m"
	dim     = "\033[2m"
	red     = "\033[31m"
	yellow  = "\033[33m"
	cyan    = "\033[36m"
	green   = "\033[32m"
	magenta = "\033[35m"
	blue    = "\033[34m"
)

// chainKeys are the consensus-timeline fields promoted to the front of
// every log line, in this order.
var chainKeys = []string{"slot", "phase", "head", "justified_slot", "finalized_slot"}

var defaultLogger *slog.Logger
var once sync.Once

// Init sets up the global logger with the given level.
func Init(level slog.Level) {
	once.Do(func() {
		handler := &chainHandler{
			out:   os.Stdout,
			level: level,
		}
		defaultLogger = slog.New(handler)
		slog.SetDefault(defaultLogger)
	})
}

// NewComponentLogger returns a logger tagged with a component name.
func NewComponentLogger(component string) *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo)
	}
	return defaultLogger.With(slog.String("comp", component))
}

// ShortHash returns the first 8 hex chars of a [32]byte hash.
func ShortHash(h [32]byte) string {
	return fmt.Sprintf("%x", h[:4])
}

// chainHandler is a slog.Handler producing one aligned, colored line per
// record:
//
//	14:23:45.123 INF consensus  view merge  slot=4  phase=MERGE  merged_votes=3
//
// Consensus-timeline attributes come first (chainKeys order), everything
// else follows in record order. Records from untagged third-party
// libraries (quic-go, pubsub) are dropped below error level.
type chainHandler struct {
	out   io.Writer
	level slog.Level
	comp  string
	attrs []slog.Attr
}

func (h *chainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func levelTag(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "ERR", red
	case level >= slog.LevelWarn:
		return "WRN", yellow
	case level >= slog.LevelInfo:
		return "INF", green
	default:
		return "DBG", dim
	}
}

func chainRank(key string) int {
	for i, k := range chainKeys {
		if k == key {
			return i
		}
	}
	return -1
}

func (h *chainHandler) Handle(_ context.Context, r slog.Record) error {
	// Untagged records come from libraries, not from this node's
	// components; keep only their errors.
	if h.comp == "" && r.Level < slog.LevelError {
		return nil
	}

	var chain, rest []slog.Attr
	collect := func(a slog.Attr) {
		if a.Key == "comp" {
			return
		}
		if chainRank(a.Key) >= 0 {
			chain = append(chain, a)
			return
		}
		rest = append(rest, a)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})
	sort.SliceStable(chain, func(i, j int) bool {
		return chainRank(chain[i].Key) < chainRank(chain[j].Key)
	})

	var b strings.Builder
	b.Grow(128)
	b.WriteString(dim)
	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteString(reset)
	b.WriteByte(' ')

	tag, color := levelTag(r.Level)
	b.WriteString(color)
	b.WriteString(tag)
	b.WriteString(reset)

	if h.comp != "" {
		b.WriteByte(' ')
		b.WriteString(cyan)
		fmt.Fprintf(&b, "%-9s", h.comp)
		b.WriteString(reset)
	}

	b.WriteString("  ")
	b.WriteString(r.Message)

	writeAttrs := func(attrs []slog.Attr, color string) {
		for _, a := range attrs {
			b.WriteString("  ")
			b.WriteString(color)
			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(a.Value.String())
			b.WriteString(reset)
		}
	}
	writeAttrs(chain, blue)
	writeAttrs(rest, dim)
	b.WriteByte('\n')

	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *chainHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &chainHandler{out: h.out, level: h.level, comp: h.comp}
	next.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(next.attrs, h.attrs)
	for _, a := range attrs {
		if a.Key == "comp" {
			next.comp = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *chainHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the comp tag plus chainKeys promotion is the
	// only structure these logs carry.
	return h
}

// Banner prints the startup banner.
func Banner(version string) {
	if defaultLogger == nil {
		Init(slog.LevelInfo)
	}
	fmt.Println()
	fmt.Printf("  %srlmdcore%s %s%s%s\n", magenta, reset, dim, version, reset)
	fmt.Printf("  %sRLMD consensus-core node%s\n", dim, reset)
	fmt.Println()
}

// TimeSince returns a duration string since the given start time.
func TimeSince(start time.Time) string {
	d := time.Since(start)
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
