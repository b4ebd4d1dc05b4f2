package config

import (
	"context"
	"testing"
)

func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = NewEnvVarProvider()
}

func TestEnvVarProviderResolvesFromEnvironment(t *testing.T) {
	t.Setenv("PT_TEST_SECRET_A", "value-a")
	t.Setenv("PT_TEST_SECRET_B", "value-b")

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(),
		[]string{"PT_TEST_SECRET_A", "PT_TEST_SECRET_B", "PT_TEST_SECRET_MISSING"})
	if err != nil {
		t.Fatalf("GetParametersBatch failed: %v", err)
	}

	if result["PT_TEST_SECRET_A"] != "value-a" || result["PT_TEST_SECRET_B"] != "value-b" {
		t.Errorf("unexpected resolved values: %v", result)
	}
	if _, ok := result["PT_TEST_SECRET_MISSING"]; ok {
		t.Error("missing keys must be omitted, not returned empty")
	}
}

func TestEnvVarProviderEmptyKeys(t *testing.T) {
	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
}
