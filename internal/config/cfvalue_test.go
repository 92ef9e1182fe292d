package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func decodeCfValue(t *testing.T, yamlDoc string) cfValue {
	t.Helper()
	var holder struct {
		V cfValue `yaml:"v"`
	}
	if err := yaml.Unmarshal([]byte(yamlDoc), &holder); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return holder.V
}

func TestCfValuePlainStringPassesThroughLogicalName(t *testing.T) {
	v := decodeCfValue(t, "v: SomeLiteralArn")
	if got := v.LogicalName(); got != "SomeLiteralArn" {
		t.Fatalf("LogicalName() = %q, want %q", got, "SomeLiteralArn")
	}
	if got := v.String(); got != "SomeLiteralArn" {
		t.Fatalf("String() = %q, want %q", got, "SomeLiteralArn")
	}
}

func TestCfValueRef(t *testing.T) {
	v := decodeCfValue(t, "v: !Ref MyQueue")
	if got := v.LogicalName(); got != "MyQueue" {
		t.Fatalf("LogicalName() = %q, want %q", got, "MyQueue")
	}
	if got := v.String(); got != "" {
		t.Fatalf("String() = %q, want empty for an intrinsic", got)
	}
}

func TestCfValueGetAttStripsArnSuffix(t *testing.T) {
	v := decodeCfValue(t, "v: !GetAtt MyQueue.Arn")
	if got := v.LogicalName(); got != "MyQueue" {
		t.Fatalf("LogicalName() = %q, want %q", got, "MyQueue")
	}
}
