package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

// extractionSystemPrompt instructs the model to answer with the bare value.
// Single-purpose prompts parse far more reliably than one combined
// structured response.
const extractionSystemPrompt = `You are a data extractor. Based on the conversation, extract the requested information. Answer ONLY with the requested value, without explanation.`

// draftField describes one extractable draft field: the instruction sent to
// the completion service and how its raw reply is coerced onto the draft.
// The table is iterated uniformly; a failed extraction leaves the field at
// its default and never aborts the other fields.
type draftField struct {
	name      string
	prompt    string
	maxTokens int
	apply     func(d *types.AIDraft, raw string, now time.Time)
}

var draftFields = []draftField{
	{
		name: "title",
		prompt: `Based on our conversation: what is the project title?
Output only the title, at most 80 characters, without formatting or emojis.`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.Title = truncate(raw, 255)
		},
	},
	{
		name: "slug",
		prompt: `Create a URL short name for the project.
Only lowercase letters, digits and hyphens. At most 30 characters.
Output only the short name.`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.Slug = sanitizeSlug(raw)
		},
	},
	{
		name: "short_description",
		prompt: `Write a short description (max. 500 characters).
From the I/we perspective, without emojis.
Start with the reason why someone should support the project.`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.ShortDescription = truncate(raw, 500)
		},
	},
	{
		name: "description",
		prompt: `Write a detailed project description (max. 5000 characters).
Explain: What is it about? What is being funded? Who benefits? What is the impact?
Good storytelling, no marketing language, no false promises.`,
		maxTokens: 1000,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.Description = raw
		},
	},
	{
		name: "funding_goal",
		prompt: `What is the right funding goal?
Answer only with a number in euros, without a currency sign.`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.FundingGoal = parseFundingGoal(raw)
		},
	},
	{
		name: "project_type",
		prompt: `Which project type fits? Answer with a single word:
crowdfunding, fundraising or private`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.ProjectType = sanitizeProjectType(raw)
		},
	},
	{
		name: "plan",
		prompt: `Which plan was discussed? Answer with a single word:
basic, pro, premium or enterprise
If not discussed: basic`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.Plan = sanitizePlan(raw)
		},
	},
	{
		name: "start_date",
		prompt: `When should the project launch?
Answer only in the format YYYY-MM-DD.
If not discussed: {current_date} + 14 days.`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, now time.Time) {
			d.StartDate = parseStartDate(raw, now)
		},
	},
	{
		name: "duration_days",
		prompt: `How long should the campaign run?
Answer only with a number (30, 45, 60 or 90).
If not discussed: 45`,
		maxTokens: 200,
		apply: func(d *types.AIDraft, raw string, _ time.Time) {
			d.DurationDays = parseDurationDays(raw)
		},
	},
}

const defaultDurationDays = 45

var (
	slugStripRe   = regexp.MustCompile(`[^a-z0-9-]`)
	slugifyRe     = regexp.MustCompile(`[^a-z0-9-]+`)
	nonMoneyRe    = regexp.MustCompile(`[^\d.]`)
	nonDigitRe    = regexp.MustCompile(`[^\d]`)
	isoDateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	validTypes    = map[string]struct{}{types.ProjectTypeCrowdfunding: {}, types.ProjectTypeFundraising: {}, types.ProjectTypePrivate: {}}
	validPlans    = map[string]struct{}{types.PlanBasic: {}, types.PlanPro: {}, types.PlanPremium: {}, types.PlanEnterprise: {}}
)

// truncate caps s at max characters, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// sanitizeSlug normalizes a model-produced slug: lowercase, keep only
// [a-z0-9-], cap at 30 characters. An empty result gets a random fallback so
// the draft always carries a usable slug.
func sanitizeSlug(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = slugStripRe.ReplaceAllString(slug, "")
	if len(slug) > 30 {
		slug = slug[:30]
	}
	if slug == "" {
		slug = fmt.Sprintf("project-%s", uuid.New().String()[:8])
	}
	return slug
}

// slugifyTitle derives a slug candidate from a title at conversion time,
// when the draft carries no stored slug.
func slugifyTitle(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugifyRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return slug
}

func sanitizeProjectType(raw string) string {
	projectType := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := validTypes[projectType]; !ok {
		return types.ProjectTypeCrowdfunding
	}
	return projectType
}

func sanitizePlan(raw string) string {
	plan := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := validPlans[plan]; !ok {
		return types.PlanBasic
	}
	return plan
}

func parseFundingGoal(raw string) *decimal.Decimal {
	cleaned := nonMoneyRe.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	goal, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &goal
}

func parseDurationDays(raw string) *int {
	cleaned := nonDigitRe.ReplaceAllString(raw, "")
	days, err := strconv.Atoi(cleaned)
	if err != nil {
		days = defaultDurationDays
	}
	return &days
}

// parseStartDate scans the reply for a YYYY-MM-DD date. Anything else,
// including an unparsable match, falls back to today + 14 days.
func parseStartDate(raw string, now time.Time) *time.Time {
	fallback := now.AddDate(0, 0, 14)
	match := isoDateRe.FindString(raw)
	if match == "" {
		return &fallback
	}
	parsed, err := time.Parse("2006-01-02", match)
	if err != nil {
		return &fallback
	}
	return &parsed
}

// planProvisions maps plan to the platform commission percentage.
// Enterprise is individually negotiated and stays NULL.
var planProvisions = map[string]*decimal.Decimal{
	types.PlanBasic:      decimalPtr("9.00"),
	types.PlanPro:        decimalPtr("7.00"),
	types.PlanPremium:    decimalPtr("5.00"),
	types.PlanEnterprise: nil,
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// provisionForPlan returns the commission for a plan; unrecognized plans get
// the basic rate, never NULL.
func provisionForPlan(plan string) *decimal.Decimal {
	provision, ok := planProvisions[plan]
	if !ok {
		return planProvisions[types.PlanBasic]
	}
	return provision
}
