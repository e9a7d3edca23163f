package battery

import (
	"io"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrSubcommandMustBeSet = errors.New("subcommand must be set")
	ErrEmptyBattery        = errors.New("battery has no invocation")
)

// Invocation is one call of the external tool.
type Invocation struct {
	Subcommand string `yaml:"subcommand"`
	Flags      Flags  `yaml:"flags"`
}

// Args returns the subcommand followed by its rendered flags.
func (i Invocation) Args() []string {
	return append([]string{i.Subcommand}, i.Flags.Args()...)
}

// Argv prefixes Args with the executable.
func (i Invocation) Argv(tool string) []string {
	return append([]string{tool}, i.Args()...)
}

// Experiment is the value of --experiment-name, empty when unset.
func (i Invocation) Experiment() string {
	name, _ := i.Flags.Get("experiment-name")

	return name
}

func (i Invocation) String() string {
	return ShellLine(i.Args())
}

type Group struct {
	Subcommand string  `yaml:"subcommand"`
	Flags      Flags   `yaml:"flags,omitempty"`
	Variants   []Flags `yaml:"variants,omitempty"`
}

// Expand returns one invocation per variant, or a single invocation when the
// group has no variant.
func (g Group) Expand() []Invocation {
	if len(g.Variants) == 0 {
		return []Invocation{{Subcommand: g.Subcommand, Flags: g.Flags.Merge(nil)}}
	}

	res := make([]Invocation, 0, len(g.Variants))
	for _, v := range g.Variants {
		res = append(res, Invocation{Subcommand: g.Subcommand, Flags: g.Flags.Merge(v)})
	}

	return res
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Subcommand) == "" {
		return ErrSubcommandMustBeSet
	}
	if err := g.Flags.validate(); err != nil {
		return errors.Wrapf(err, "group %q", g.Subcommand)
	}
	for i, v := range g.Variants {
		if err := v.validate(); err != nil {
			return errors.Wrapf(err, "group %q variant %d", g.Subcommand, i)
		}
	}

	return nil
}

type Battery []Group

func (b Battery) Expand() []Invocation {
	var res []Invocation
	for _, g := range b {
		res = append(res, g.Expand()...)
	}

	return res
}

func (b Battery) Validate() error {
	if len(b) == 0 {
		return ErrEmptyBattery
	}
	for i, g := range b {
		if err := g.Validate(); err != nil {
			return errors.Wrapf(err, "group %d", i)
		}
	}

	return nil
}

// Load decodes and validates a battery YAML document.
func Load(r io.Reader) (Battery, error) {
	var b Battery
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return nil, errors.Wrap(err, "decode battery")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

func Write(w io.Writer, b Battery) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return errors.Wrap(err, "encode battery")
	}

	return errors.Wrap(enc.Close(), "close battery encoder")
}

// ShellLine joins args into a line a POSIX shell splits back into args.
func ShellLine(args []string) string {
	return shellescape.QuoteCommand(args)
}
