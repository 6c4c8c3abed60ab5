// Package prompts contains all reasoning-engine instruction text used by
// Concierge, plus the canned customer-facing messages the turn pipeline
// falls back to.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. The business persona lives in config.yaml;
// this package holds the contract text wrapped around it (response schema,
// plan analysis, JSON repair, consistency review).
//
// Convention: each prompt category gets its own file (system.go, plan.go,
// repair.go, review.go) with an exported function that accepts the dynamic
// parts and returns the fully interpolated prompt string.
package prompts
