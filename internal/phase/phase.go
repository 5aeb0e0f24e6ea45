// Package phase partitions a shot's metric mapping into the three phases of a
// shooting motion.
package phase

import (
	"strings"

	"github.com/sells-group/shotsense-cli/internal/model"
)

// Phase is one stage of a shooting motion.
type Phase string

const (
	Setup         Phase = "Setup"
	Release       Phase = "Release"
	FollowThrough Phase = "Follow-through"
)

// All lists the phases in motion order.
var All = []Phase{Setup, Release, FollowThrough}

// Prefix maps a metric-key prefix to the phase it denotes.
type Prefix struct {
	Tag   string
	Phase Phase
}

// DefaultSeparator joins a phase prefix to the metric name.
const DefaultSeparator = "_"

// DefaultPrefixes recognizes the single-letter tags the analysis service
// emits (S_, R_, F_) and the spelled-out phase names.
var DefaultPrefixes = []Prefix{
	{Tag: "S", Phase: Setup},
	{Tag: "R", Phase: Release},
	{Tag: "F", Phase: FollowThrough},
	{Tag: string(Setup), Phase: Setup},
	{Tag: string(Release), Phase: Release},
	{Tag: string(FollowThrough), Phase: FollowThrough},
}

// Entry is one metric assigned to a phase.
type Entry struct {
	// Key is the display key: the original key without prefix and separator.
	Key string `json:"key" yaml:"key"`
	// Source is the original metric key.
	Source string `json:"source" yaml:"source"`
	Value  any    `json:"value" yaml:"value"`
}

// View holds one ordered entry list per phase. The lists are never nil.
type View struct {
	Setup         []Entry `json:"setup" yaml:"setup"`
	Release       []Entry `json:"release" yaml:"release"`
	FollowThrough []Entry `json:"follow_through" yaml:"follow_through"`
}

// Group returns the entries for p.
func (v View) Group(p Phase) []Entry {
	switch p {
	case Setup:
		return v.Setup
	case Release:
		return v.Release
	case FollowThrough:
		return v.FollowThrough
	default:
		return nil
	}
}

// Len is the number of metrics assigned to any phase.
func (v View) Len() int {
	return len(v.Setup) + len(v.Release) + len(v.FollowThrough)
}

// Normalizer partitions metrics by prefix.
type Normalizer struct {
	prefixes  []Prefix
	separator string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPrefixes replaces the recognized prefixes. Earlier prefixes win.
func WithPrefixes(p []Prefix) Option {
	return func(n *Normalizer) {
		n.prefixes = p
	}
}

// WithSeparator replaces the prefix separator.
func WithSeparator(sep string) Option {
	return func(n *Normalizer) {
		n.separator = sep
	}
}

// NewNormalizer creates a Normalizer with the default prefixes.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		prefixes:  DefaultPrefixes,
		separator: DefaultSeparator,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Partition normalizes m with the default prefixes.
func Partition(m model.Metrics) View {
	return NewNormalizer().Normalize(m)
}

// Normalize assigns each metric to the phase of the first matching prefix,
// keeping input order within a phase. Keys without a recognized prefix, or
// with nothing after it, are left out of every phase. Values are not touched.
func (n *Normalizer) Normalize(m model.Metrics) View {
	v := View{
		Setup:         []Entry{},
		Release:       []Entry{},
		FollowThrough: []Entry{},
	}
	for _, metric := range m {
		p, key, ok := n.match(metric.Key)
		if !ok {
			continue
		}
		e := Entry{Key: key, Source: metric.Key, Value: metric.Value}
		switch p {
		case Setup:
			v.Setup = append(v.Setup, e)
		case Release:
			v.Release = append(v.Release, e)
		case FollowThrough:
			v.FollowThrough = append(v.FollowThrough, e)
		}
	}
	return v
}

func (n *Normalizer) match(key string) (Phase, string, bool) {
	for _, p := range n.prefixes {
		head := p.Tag + n.separator
		if rest, ok := strings.CutPrefix(key, head); ok && rest != "" {
			return p.Phase, rest, true
		}
	}
	return "", "", false
}
