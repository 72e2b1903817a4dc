// Package generator produces synthetic raw events drawn from the taxonomy,
// for load and smoke testing the ingest path.
package generator

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/taxonomy"
)

// DefaultActorDist is used when Options.ActorDist is empty.
const DefaultActorDist = "admin:40,editor:30,author:20,system:10"

const (
	ipProbability      = 0.5
	summaryProbability = 0.8
)

// Options configures a Generator.
type Options struct {
	// Seed makes generation deterministic; 0 seeds from the clock.
	Seed int64
	// ActorDist is a weighted actor list, "name:percent,...", summing to 100.
	ActorDist string
}

type weightedValue struct {
	value  string
	weight int
}

type pair struct {
	context string
	action  string
}

// Generator is not safe for concurrent use.
type Generator struct {
	rng    *rand.Rand
	actors []weightedValue
	pairs  []pair
}

// New creates a generator over every (context, action) pair in tax.
func New(tax *taxonomy.Registry, opts Options) (*Generator, error) {
	if opts.ActorDist == "" {
		opts.ActorDist = DefaultActorDist
	}
	actors, err := parseWeightedDistribution(opts.ActorDist)
	if err != nil {
		return nil, fmt.Errorf("invalid actor distribution: %w", err)
	}

	var pairs []pair
	for _, c := range tax.Contexts() {
		actions := make([]string, 0, len(c.Actions))
		for a := range c.Actions {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			pairs = append(pairs, pair{context: c.Name, action: a})
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("taxonomy has no actions to generate from")
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		actors: actors,
		pairs:  pairs,
	}, nil
}

// ParseDistribution parses "KEY:PERCENT,..." into a map. Percentages must
// sum to 100.
func ParseDistribution(distStr string) (map[string]int, error) {
	if strings.TrimSpace(distStr) == "" {
		return nil, fmt.Errorf("distribution string cannot be empty")
	}

	result := make(map[string]int)
	total := 0
	for _, part := range strings.Split(distStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, pct, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid distribution format: %s (expected KEY:PERCENT)", part)
		}
		percent, err := strconv.Atoi(strings.TrimSpace(pct))
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %s: %w", part, err)
		}
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("percentage must be 0-100, got %d in %s", percent, part)
		}
		result[strings.TrimSpace(key)] = percent
		total += percent
	}

	if total != 100 {
		return nil, fmt.Errorf("distribution percentages must sum to 100, got %d", total)
	}
	return result, nil
}

// parseWeightedDistribution returns the distribution ordered by value so a
// seeded generator is reproducible.
func parseWeightedDistribution(distStr string) ([]weightedValue, error) {
	dist, err := ParseDistribution(distStr)
	if err != nil {
		return nil, err
	}
	out := make([]weightedValue, 0, len(dist))
	for v, w := range dist {
		out = append(out, weightedValue{value: v, weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].value < out[j].value })
	return out, nil
}

// Generate returns a random event with a registered context and action.
func (g *Generator) Generate() *events.RawEvent {
	p := g.pairs[g.rng.Intn(len(g.pairs))]
	ev := &events.RawEvent{
		Actor:     g.selectWeighted(g.actors),
		Context:   p.context,
		Action:    p.action,
		ObjectID:  strconv.Itoa(g.rng.Intn(10000) + 1),
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"request_id": uuid.NewString()},
	}
	if g.rng.Float64() < summaryProbability {
		ev.Summary = fmt.Sprintf("%s %s %s #%s", ev.Actor, p.action, p.context, ev.ObjectID)
	}
	if g.rng.Float64() < ipProbability {
		ev.IP = fmt.Sprintf("10.%d.%d.%d", g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(254)+1)
	}
	return ev
}

// AlertTypes are the notifier kinds GenerateRule draws from.
var AlertTypes = []string{"email", "slack", "webhook", "kafka", "log"}

// GenerateRule returns a raw rule payload, as accepted by alert.Rule.Populate,
// filtering on a registered context and sometimes an action or author.
func (g *Generator) GenerateRule(n int) map[string]any {
	p := g.pairs[g.rng.Intn(len(g.pairs))]
	alertType := AlertTypes[g.rng.Intn(len(AlertTypes))]

	raw := map[string]any{
		"author":         "seed",
		"filter_context": p.context,
		"alert_type":     alertType,
	}
	if g.rng.Float64() < 0.5 {
		raw["filter_action"] = p.action
	}
	if g.rng.Float64() < 0.2 {
		raw["filter_author"] = g.selectWeighted(g.actors)
	}

	switch alertType {
	case "email":
		raw["alert_meta"] = map[string]string{"recipients": fmt.Sprintf("alert-%03d@example.com", n)}
	case "slack":
		raw["alert_meta"] = map[string]string{"webhook_url": fmt.Sprintf("https://hooks.slack.com/services/T000/B%03d/example", n)}
	case "webhook":
		raw["alert_meta"] = map[string]string{"url": fmt.Sprintf("https://webhook.example.com/rule-%03d", n)}
	default:
		raw["alert_meta"] = map[string]string{}
	}
	return raw
}

// Fixed returns an event with the given coordinates, for targeted smoke tests.
func Fixed(actor, context, action string) *events.RawEvent {
	return &events.RawEvent{
		Actor:     actor,
		Context:   context,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Summary:   fmt.Sprintf("%s %s %s", actor, action, context),
		Metadata:  map[string]string{"request_id": uuid.NewString()},
	}
}

func (g *Generator) selectWeighted(choices []weightedValue) string {
	total := 0
	for _, c := range choices {
		total += c.weight
	}
	if total == 0 {
		return "unknown"
	}

	r := g.rng.Intn(total)
	cumulative := 0
	for _, c := range choices {
		cumulative += c.weight
		if r < cumulative {
			return c.value
		}
	}
	return choices[len(choices)-1].value
}
