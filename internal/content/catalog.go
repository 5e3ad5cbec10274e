// Package content loads the game content catalog: achievement definitions
// and currency reward rules. Criterion descriptors are decoded once, at
// load time, into the closed criterion type; the evaluator never sees raw
// strings.
package content

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"playguard/internal/model"
)

// Raw YAML shapes. Durations are written as strings ("5m", "90s").
type rawCriterion struct {
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	TimeLimit string `yaml:"time_limit"`
}

type rawAchievement struct {
	ID          string       `yaml:"id"`
	GameID      string       `yaml:"game_id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Icon        string       `yaml:"icon"`
	Reward      int64        `yaml:"reward"`
	Criterion   rawCriterion `yaml:"criterion"`
	Secret      bool         `yaml:"secret"`
}

type rawRule struct {
	ActionID  string `yaml:"action_id"`
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	Amount    int64  `yaml:"amount"`
}

type rawCatalog struct {
	Achievements []rawAchievement `yaml:"achievements"`
	Rules        []rawRule        `yaml:"reward_rules"`
}

// Catalog is the decoded, read-only content set.
type Catalog struct {
	achievements map[string][]model.Achievement
	rules        []model.RewardRule
}

// Load reads and decodes the catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes catalog YAML.
func Parse(raw []byte) (*Catalog, error) {
	var rc rawCatalog
	if err := yaml.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	cat := &Catalog{achievements: make(map[string][]model.Achievement)}

	seen := make(map[string]bool)
	for _, ra := range rc.Achievements {
		if ra.ID == "" || ra.GameID == "" {
			return nil, fmt.Errorf("achievement %q: id and game_id are required", ra.ID)
		}
		key := ra.GameID + ":" + ra.ID
		if seen[key] {
			return nil, fmt.Errorf("achievement %q: duplicate id in game %q", ra.ID, ra.GameID)
		}
		seen[key] = true
		if ra.Reward < 0 {
			return nil, fmt.Errorf("achievement %q: reward must not be negative", ra.ID)
		}

		criterion, err := decodeCriterion(ra.Criterion)
		if err != nil {
			return nil, fmt.Errorf("achievement %q: %w", ra.ID, err)
		}

		cat.achievements[ra.GameID] = append(cat.achievements[ra.GameID], model.Achievement{
			ID:          ra.ID,
			GameID:      ra.GameID,
			Name:        ra.Name,
			Description: ra.Description,
			Icon:        ra.Icon,
			Reward:      ra.Reward,
			Criterion:   criterion,
			Secret:      ra.Secret,
		})
	}

	for _, rr := range rc.Rules {
		if rr.ActionID == "" {
			return nil, fmt.Errorf("reward rule: action_id is required")
		}
		if rr.Amount <= 0 {
			return nil, fmt.Errorf("reward rule %q: amount must be positive", rr.ActionID)
		}
		cat.rules = append(cat.rules, model.RewardRule{
			ActionID:  rr.ActionID,
			Kind:      model.RuleKind(rr.Kind),
			Threshold: rr.Threshold,
			Amount:    rr.Amount,
		})
	}

	return cat, nil
}

// decodeCriterion maps a raw descriptor to the criterion type. Unknown
// kinds are kept as-is: the evaluator treats them as never satisfied, so
// content written for a newer engine loads cleanly.
func decodeCriterion(rc rawCriterion) (model.Criterion, error) {
	c := model.Criterion{
		Kind:      model.CriterionKind(rc.Kind),
		Threshold: rc.Threshold,
	}
	if rc.Kind == "" {
		return c, fmt.Errorf("criterion kind is required")
	}
	if rc.TimeLimit != "" {
		d, err := time.ParseDuration(rc.TimeLimit)
		if err != nil {
			return c, fmt.Errorf("invalid time_limit %q: %w", rc.TimeLimit, err)
		}
		c.TimeLimit = d
	}
	return c, nil
}

// AchievementsFor returns the achievements defined for a game, in catalog
// order. The returned slice is shared; callers must not mutate it.
func (c *Catalog) AchievementsFor(gameID string) []model.Achievement {
	return c.achievements[gameID]
}

// Rules returns the currency reward rules in catalog order.
func (c *Catalog) Rules() []model.RewardRule {
	return c.rules
}

// Games returns the number of games with at least one achievement.
func (c *Catalog) Games() int {
	return len(c.achievements)
}
