package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"github.com/idp-labs/portal/internal/platform/env"
)

// SFNClient is the subset of the Step Functions API the portal uses.
type SFNClient interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

type Config struct {
	StateMachineARN string
	Region          string
	CallTimeout     time.Duration
}

func ConfigFromEnv() (Config, error) {
	callTimeout, err := env.Duration("WORKFLOW_CALL_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		StateMachineARN: strings.TrimSpace(env.String("WORKFLOW_STATE_MACHINE_ARN", "")),
		Region:          env.String("AWS_REGION", "us-east-1"),
		CallTimeout:     callTimeout,
	}
	if cfg.CallTimeout <= 0 {
		return Config{}, errors.New("WORKFLOW_CALL_TIMEOUT must be positive")
	}
	return cfg, nil
}

// Enabled reports whether a workflow engine endpoint is configured at all.
// When false the portal resolves actions locally and never reconciles.
func (c Config) Enabled() bool {
	return c.StateMachineARN != ""
}

// StepFunctions drives an AWS Step Functions state machine.
type StepFunctions struct {
	client          SFNClient
	stateMachineARN string
	callTimeout     time.Duration
}

func NewStepFunctions(ctx context.Context, cfg Config) (*StepFunctions, error) {
	if !cfg.Enabled() {
		return nil, errors.New("WORKFLOW_STATE_MACHINE_ARN is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewStepFunctionsWithClient(sfn.NewFromConfig(awsCfg), cfg), nil
}

func NewStepFunctionsWithClient(client SFNClient, cfg Config) *StepFunctions {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StepFunctions{
		client:          client,
		stateMachineARN: cfg.StateMachineARN,
		callTimeout:     timeout,
	}
}

func (e *StepFunctions) Start(ctx context.Context, input []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := e.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(e.stateMachineARN),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return "", fmt.Errorf("start execution: %w", err)
	}
	handle := aws.ToString(out.ExecutionArn)
	if handle == "" {
		return "", errors.New("engine returned no execution arn")
	}
	return handle, nil
}

func (e *StepFunctions) Describe(ctx context.Context, handle string) (Execution, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return Execution{}, errors.New("execution handle is required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := e.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(handle),
	})
	if err != nil {
		var notFound *types.ExecutionDoesNotExist
		if errors.As(err, &notFound) {
			return Execution{}, ErrExecutionNotFound
		}
		return Execution{}, fmt.Errorf("describe execution: %w", err)
	}

	exec := Execution{
		ErrorCode: aws.ToString(out.Error),
		Cause:     aws.ToString(out.Cause),
	}
	switch out.Status {
	case types.ExecutionStatusRunning, types.ExecutionStatusPendingRedrive:
		exec.State = StateRunning
	case types.ExecutionStatusSucceeded:
		exec.State = StateSucceeded
	case types.ExecutionStatusFailed:
		exec.State = StateFailed
	case types.ExecutionStatusTimedOut:
		exec.State = StateTimedOut
	case types.ExecutionStatusAborted:
		exec.State = StateAborted
	default:
		return Execution{}, fmt.Errorf("unexpected execution status %q", out.Status)
	}
	return exec, nil
}
