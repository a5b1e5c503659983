package acme

import (
	"context"

	"github.com/go-acme/lego/v4/challenge/dns01"

	"gitlab.bluewillows.net/root/flarekeep/pkg/certtool"
)

// hookProvider bridges lego's challenge provider interface onto a
// certtool.ChallengeHook. lego's interface carries no context, so the
// issuing cycle's context is captured at construction; the hook decides
// the record name from the domain, the provider only extracts the value.
type hookProvider struct {
	ctx  context.Context
	hook certtool.ChallengeHook
}

func newHookProvider(ctx context.Context, hook certtool.ChallengeHook) *hookProvider {
	return &hookProvider{ctx: ctx, hook: hook}
}

func (p *hookProvider) Present(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return p.hook.Present(p.ctx, domain, info.Value)
}

func (p *hookProvider) CleanUp(domain, token, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return p.hook.Cleanup(p.ctx, domain, info.Value)
}
