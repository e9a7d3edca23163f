package battery

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrFlagName      = errors.New("flag name must be set")
	ErrFlagValue     = errors.New("flag value must be set")
	ErrDuplicateFlag = errors.New("duplicate flag")
	ErrFlagsShape    = errors.New("flags must be a mapping")
)

// FlagKind tells how a flag renders on the command line.
type FlagKind int

const (
	// ValueFlag renders as "--name value".
	ValueFlag FlagKind = iota
	// SwitchFlag renders as a bare "--name".
	SwitchFlag
	// OmittedFlag renders as nothing. It lets a variant turn off a switch
	// declared by its group.
	OmittedFlag
)

type Flag struct {
	Name  string
	Value string
	Kind  FlagKind
}

func Value(name, value string) Flag {
	return Flag{Name: name, Value: value}
}

func Switch(name string, on bool) Flag {
	if on {
		return Flag{Name: name, Kind: SwitchFlag}
	}

	return Flag{Name: name, Kind: OmittedFlag}
}

func (f Flag) Args() []string {
	switch f.Kind {
	case SwitchFlag:
		return []string{"--" + f.Name}
	case OmittedFlag:
		return nil
	default:
		return []string{"--" + f.Name, f.Value}
	}
}

// Flags keeps flags in declaration order. In YAML it is a mapping whose key
// order is preserved; booleans become switches.
type Flags []Flag

func (fs Flags) Args() []string {
	args := make([]string, 0, 2*len(fs))
	for _, f := range fs {
		args = append(args, f.Args()...)
	}

	return args
}

// Get returns the value of a flag. Switches report "true", omitted flags are
// not found.
func (fs Flags) Get(name string) (string, bool) {
	for _, f := range fs {
		if f.Name != name {
			continue
		}
		switch f.Kind {
		case SwitchFlag:
			return "true", true
		case OmittedFlag:
			return "", false
		default:
			return f.Value, true
		}
	}

	return "", false
}

// Merge returns fs with overrides applied: a flag already present is replaced
// in place, a new one is appended. fs is left untouched.
func (fs Flags) Merge(overrides Flags) Flags {
	merged := make(Flags, len(fs), len(fs)+len(overrides))
	copy(merged, fs)
	for _, o := range overrides {
		replaced := false
		for i := range merged {
			if merged[i].Name == o.Name {
				merged[i] = o
				replaced = true

				break
			}
		}
		if !replaced {
			merged = append(merged, o)
		}
	}

	return merged
}

// Without returns fs minus the flags with the given name.
func (fs Flags) Without(name string) Flags {
	res := make(Flags, 0, len(fs))
	for _, f := range fs {
		if f.Name != name {
			res = append(res, f)
		}
	}

	return res
}

// ParseArgs reads flags back from rendered arguments: "--name value" pairs,
// and switches for a name followed by another name or by nothing.
func ParseArgs(args []string) (Flags, error) {
	fs := make(Flags, 0, len(args)/2)
	for i := 0; i < len(args); i++ {
		name, ok := strings.CutPrefix(args[i], "--")
		if !ok || name == "" {
			return nil, errors.Wrapf(ErrFlagName, "argument %d is %q", i, args[i])
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			fs = append(fs, Value(name, args[i+1]))
			i++

			continue
		}
		fs = append(fs, Switch(name, true))
	}

	return fs, nil
}

func (fs Flags) validate() error {
	for i, f := range fs {
		if strings.TrimSpace(f.Name) == "" {
			return errors.Wrapf(ErrFlagName, "flag %d", i)
		}
	}

	return nil
}

// UnmarshalYAML decodes a mapping of flags. Merge keys ("<<: *base") bring in
// the flags of the aliased mappings; a flag set explicitly replaces a merged one
// in place. A flag can appear once and must have a value.
func (fs *Flags) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Wrapf(ErrFlagsShape, "line %d", node.Line)
	}

	var merged Flags
	flags := make(Flags, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
			base, err := mergedFlags(value)
			if err != nil {
				return errors.Wrapf(err, "merge at line %d", key.Line)
			}
			merged = merged.Merge(base)

			continue
		}

		name := strings.TrimPrefix(key.Value, "--")
		if name == "" {
			return errors.Wrapf(ErrFlagName, "line %d", key.Line)
		}
		if line, ok := seen[name]; ok {
			return errors.Wrapf(ErrDuplicateFlag, "flag %q at lines %d and %d", name, line, key.Line)
		}
		seen[name] = key.Line

		if value.Kind == yaml.AliasNode {
			value = value.Alias
		}
		if value.Kind != yaml.ScalarNode {
			return errors.Errorf("flag %q at line %d: value must be a scalar", name, value.Line)
		}

		switch value.ShortTag() {
		case "!!null":
			return errors.Wrapf(ErrFlagValue, "flag %q at line %d", name, value.Line)
		case "!!bool":
			var on bool
			if err := value.Decode(&on); err != nil {
				return errors.Wrapf(err, "flag %q", name)
			}
			flags = append(flags, Switch(name, on))
		default:
			flags = append(flags, Value(name, value.Value))
		}
	}
	*fs = merged.Merge(flags)

	return nil
}

// mergedFlags decodes the value of a merge key: an alias to a mapping, a
// mapping, or a sequence of them where earlier entries take precedence.
func mergedFlags(node *yaml.Node) (Flags, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}

	switch node.Kind {
	case yaml.MappingNode:
		var fs Flags
		if err := fs.UnmarshalYAML(node); err != nil {
			return nil, err
		}

		return fs, nil
	case yaml.SequenceNode:
		var res Flags
		for i := len(node.Content) - 1; i >= 0; i-- {
			fs, err := mergedFlags(node.Content[i])
			if err != nil {
				return nil, err
			}
			res = res.Merge(fs)
		}

		return res, nil
	default:
		return nil, errors.Wrapf(ErrFlagsShape, "line %d", node.Line)
	}
}

func (fs Flags) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fs {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name}
		var value *yaml.Node
		switch f.Kind {
		case SwitchFlag:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"}
		case OmittedFlag:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"}
		default:
			value = &yaml.Node{Kind: yaml.ScalarNode, Value: f.Value}
			// Numbers stay plain, anything else that could resolve to a
			// bool or null gets quoted.
			value.Tag = "!!str"
			if looksNumeric(f.Value) {
				value.Tag = ""
			}
		}
		node.Content = append(node.Content, key, value)
	}

	return node, nil
}

func looksNumeric(s string) bool {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil || len(doc.Content) != 1 {
		return false
	}
	tag := doc.Content[0].Tag

	return tag == "!!int" || tag == "!!float"
}
