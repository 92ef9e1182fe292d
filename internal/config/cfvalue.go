package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// cfValue decodes a CloudFormation "intrinsic function or literal" property
// value: a plain scalar, a `!Ref LogicalId`, or a `!GetAtt LogicalId.Arn`.
// Mirrors sam-e-types' CloudFormationValue enum and its Display impl, which
// strips a trailing ".Arn" off GetAtt so both forms resolve to the same
// logical resource name.
type cfValue struct {
	literal     string
	logical     string
	isIntrinsic bool
}

func (v *cfValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!Ref":
		v.isIntrinsic = true
		return node.Decode(&v.logical)
	case "!GetAtt":
		v.isIntrinsic = true
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		v.logical = strings.TrimSuffix(raw, ".Arn")
		return nil
	default:
		return node.Decode(&v.literal)
	}
}

// LogicalName returns the resource name this value refers to: the target of
// a Ref/GetAtt, or the literal itself for a plain string. Mirrors
// CloudFormationValue's Display impl in sam-e-types, which passes plain
// strings through unchanged rather than treating them as unresolved.
func (v cfValue) LogicalName() string {
	if v.isIntrinsic {
		return v.logical
	}
	return v.literal
}

// String returns the literal scalar this value holds, or "" if it is an
// intrinsic function.
func (v cfValue) String() string {
	if v.isIntrinsic {
		return ""
	}
	return v.literal
}
