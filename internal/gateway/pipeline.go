package gateway

import (
	"context"

	"market-gateway/internal/models"
)

// Stage is the last step an inbound request reached in the pipeline.
type Stage int

const (
	StageReceived Stage = iota
	StageRateLimitChecked
	StageAuthPending
	StageAuthenticated
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageRateLimitChecked:
		return "rate_limit_checked"
	case StageAuthPending:
		return "auth_pending"
	case StageAuthenticated:
		return "authenticated"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Admitter interface {
	Admit(ctx context.Context, identity string) error
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// Inbound is what the pipeline needs to know about a request.
type Inbound struct {
	ClientID    string
	BearerToken string
	Protected   bool
}

type Outcome struct {
	Stage    Stage
	Identity *models.Identity
	Err      error
}

// Admitted reports whether the request may proceed to its handler.
func (o Outcome) Admitted() bool {
	return o.Stage != StageRejected && o.Stage != StageReceived
}

// Pipeline runs admission and authentication in a fixed order:
// rate limit first, then token delegation for protected routes.
type Pipeline struct {
	admitter      Admitter
	authenticator Authenticator
	observe       func(ctx context.Context, stage Stage)
}

// NewPipeline builds a pipeline. A nil admitter disables rate limiting.
func NewPipeline(admitter Admitter, authenticator Authenticator) *Pipeline {
	return &Pipeline{admitter: admitter, authenticator: authenticator}
}

// Observe registers fn to be called on every stage a request enters.
// It must be set before the pipeline serves requests.
func (p *Pipeline) Observe(fn func(ctx context.Context, stage Stage)) {
	p.observe = fn
}

func (p *Pipeline) Run(ctx context.Context, in Inbound) Outcome {
	p.enter(ctx, StageReceived)

	if p.admitter != nil {
		if err := p.admitter.Admit(ctx, in.ClientID); err != nil {
			return p.reject(ctx, err)
		}
	}
	p.enter(ctx, StageRateLimitChecked)

	if !in.Protected {
		return Outcome{Stage: StageRateLimitChecked}
	}

	p.enter(ctx, StageAuthPending)
	identity, err := p.authenticator.Authenticate(ctx, in.BearerToken)
	if err != nil {
		return p.reject(ctx, err)
	}

	p.enter(ctx, StageAuthenticated)
	return Outcome{Stage: StageAuthenticated, Identity: identity}
}

func (p *Pipeline) reject(ctx context.Context, err error) Outcome {
	p.enter(ctx, StageRejected)
	return Outcome{Stage: StageRejected, Err: err}
}

func (p *Pipeline) enter(ctx context.Context, stage Stage) {
	if p.observe != nil {
		p.observe(ctx, stage)
	}
}
