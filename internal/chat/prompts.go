// ABOUTME: Privilege-tier system prompt builder
// ABOUTME: Maps an account's tier to a configuration-driven prompt template

package chat

import (
	"context"

	"github.com/NEARBuilders/cyborg-gateway/internal/directory"
)

// PromptBuilder produces the system message for one turn
type PromptBuilder interface {
	SystemPrompt(ctx context.Context, accountID string) string
}

// TierResolver resolves an account's privilege tier
type TierResolver interface {
	Tier(ctx context.Context, accountID string) string
}

// Default prompt templates used when configuration leaves a tier unset
const (
	defaultGuestPrompt  = "You are the community assistant. The current user is a guest. Answer questions about the community and its members. Use the directory tools when asked about people."
	defaultHolderPrompt = "You are the community assistant. The current user is a verified holder. Answer questions about the community and its members, and help with member-only topics. Use the directory tools when asked about people."
	defaultOGPrompt     = "You are the community assistant. The current user is an original holder. Answer questions about the community and its members, including early-holder history. Use the directory tools when asked about people."
)

// TierPrompts builds system prompts from per-tier templates
type TierPrompts struct {
	tiers     TierResolver
	templates map[string]string
}

// NewTierPrompts creates a prompt builder. Empty template entries fall back
// to built-in defaults.
func NewTierPrompts(tiers TierResolver, guest, holder, og string) *TierPrompts {
	if guest == "" {
		guest = defaultGuestPrompt
	}
	if holder == "" {
		holder = defaultHolderPrompt
	}
	if og == "" {
		og = defaultOGPrompt
	}
	return &TierPrompts{
		tiers: tiers,
		templates: map[string]string{
			directory.TierGuest:  guest,
			directory.TierHolder: holder,
			directory.TierOG:     og,
		},
	}
}

// SystemPrompt returns the template for the account's tier
func (p *TierPrompts) SystemPrompt(ctx context.Context, accountID string) string {
	tier := directory.TierGuest
	if p.tiers != nil {
		tier = p.tiers.Tier(ctx, accountID)
	}
	if prompt, ok := p.templates[tier]; ok {
		return prompt
	}
	return p.templates[directory.TierGuest]
}
