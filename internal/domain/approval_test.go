package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprovalRequest_CanTransitionTo(t *testing.T) {
	pending := &ApprovalRequest{Status: StatusPending}

	assert.NoError(t, pending.CanTransitionTo(StatusApproved))
	assert.NoError(t, pending.CanTransitionTo(StatusDenied))
	assert.NoError(t, pending.CanTransitionTo(StatusTimedOut))
	assert.ErrorIs(t, pending.CanTransitionTo(StatusPending), ErrInvalidTransition)

	for _, s := range []ApprovalStatus{StatusApproved, StatusDenied, StatusTimedOut} {
		decided := &ApprovalRequest{Status: s}
		assert.ErrorIs(t, decided.CanTransitionTo(StatusApproved), ErrAlreadyProcessed, "from %s", s)
	}
}

func TestApprovalDecision_OnlyApprovedPermits(t *testing.T) {
	assert.True(t, DecisionApproved.Permits())
	assert.False(t, DecisionDenied.Permits())
	assert.False(t, DecisionTimedOut.Permits())
}

func TestApprovalStatus_Decision(t *testing.T) {
	d, ok := StatusTimedOut.Decision()
	assert.True(t, ok)
	assert.Equal(t, DecisionTimedOut, d)

	_, ok = StatusPending.Decision()
	assert.False(t, ok)
}

func TestRiskLevel(t *testing.T) {
	assert.False(t, RiskLow.RequiresApproval())
	assert.True(t, RiskMedium.RequiresApproval())
	assert.True(t, RiskHigh.RequiresApproval())
	assert.Greater(t, RiskHigh.Rank(), RiskMedium.Rank())

	lvl, err := ParseRiskLevel(" high ")
	assert.NoError(t, err)
	assert.Equal(t, RiskHigh, lvl)

	_, err = ParseRiskLevel("critical")
	assert.Error(t, err)
}

func TestRiskRule_Validate(t *testing.T) {
	assert.NoError(t, RiskRule{Pattern: "delete", Severity: RiskHigh}.Validate())
	assert.Error(t, RiskRule{Pattern: "  ", Severity: RiskHigh}.Validate())
	assert.Error(t, RiskRule{Pattern: "delete", Severity: "SEVERE"}.Validate())
	assert.Error(t, RiskRule{Pattern: "delete", Severity: RiskLow, Weight: -1}.Validate())
}
