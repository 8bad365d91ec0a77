package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	req := ExecutionRequest{Language: "python", Source: "print(1)"}
	assert.NoError(t, req.Validate())
}

func TestValidateRejectsMissingLanguage(t *testing.T) {
	req := ExecutionRequest{Source: "print(1)"}
	assert.Error(t, req.Validate())
}

func TestValidateRejectsEmptySource(t *testing.T) {
	req := ExecutionRequest{Language: "python"}
	assert.Error(t, req.Validate())
}

func TestValidateRejectsOversizedSource(t *testing.T) {
	req := ExecutionRequest{Language: "python", Source: string(make([]byte, MaxSourceBytes+1))}
	assert.Error(t, req.Validate())
}

func TestValidateAcceptsNilLimits(t *testing.T) {
	req := ExecutionRequest{Language: "python", Source: "print(1)", Limits: nil}
	assert.NoError(t, req.Validate())
}

func TestValidateRejectsOutOfRangeTimeoutOverride(t *testing.T) {
	req := ExecutionRequest{
		Language: "python",
		Source:   "print(1)",
		Limits:   &LimitsOverride{WallTimeoutMs: 999_999},
	}
	assert.Error(t, req.Validate())
}
