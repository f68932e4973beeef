package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyGenerateSection    = "generate_section"
	ActivityPolicyCompleteGeneration = "complete_generation"
	ActivityPolicyFailGeneration     = "fail_generation"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var persistRetry = temporal.RetryPolicy{
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    5,
}

var activityPolicies = map[string]activityPolicy{
	// Model calls retry inside the activity.
	ActivityPolicyGenerateSection: {
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyCompleteGeneration: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         persistRetry,
	},
	ActivityPolicyFailGeneration: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         persistRetry,
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}

// generationContext applies the per-request ceiling on top of the generate_section policy.
func generationContext(ctx workflow.Context, timeout time.Duration) workflow.Context {
	ao, err := ActivityOptionsFor(ActivityPolicyGenerateSection)
	if err != nil {
		panic(err)
	}
	if timeout > 0 {
		ao.StartToCloseTimeout = timeout
	}
	return workflow.WithActivityOptions(ctx, ao)
}
