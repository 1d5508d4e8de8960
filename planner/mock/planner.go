// Package mock provides a deterministic planner for exercising the turn loop
// without a model. It keyword-matches utterances into canned plans. It is, of
// course, only a learning aid to see how the coordinator and voice session
// handle each phase; real models may not be so kind :)
package mock

import (
	"context"
	"log/slog"
	"strings"

	"voicelog"
	"voicelog/action"
	"voicelog/planner"
)

type Planner struct{}

func NewPlanner() *Planner {
	return &Planner{}
}

func (p *Planner) Plan(ctx context.Context, req voicelog.PlanRequest) (voicelog.PlanResponse, error) {
	slog.Info("PLANNER: Mock plan invoked", "text", req.Text)

	text := strings.ToLower(req.Text)
	switch {
	case strings.Contains(text, "never mind"), strings.Contains(text, "forget it"):
		return voicelog.PlanResponse{
			Message: "Okay, dropped those.",
			Decision: voicelog.Decision{
				Intent:         "track",
				Apply:          voicelog.ApplyNone,
				ActionHandling: action.HandlingClear,
			},
		}, nil

	case strings.Contains(text, "headache"):
		return voicelog.PlanResponse{
			Message: "One headache, severity four. Want me to log it?",
			Decision: voicelog.Decision{
				Intent:         "track",
				Apply:          voicelog.ApplyConfirm,
				ActionHandling: action.HandlingReplace,
			},
			Actions: []action.WireAction{{
				Kind:        string(action.KindSymptom),
				Title:       "Log headache",
				SymptomName: "headache",
				Severity:    4,
			}},
		}, nil

	case strings.Contains(text, "lunch"), strings.Contains(text, "ate"), strings.Contains(text, "had"):
		return voicelog.PlanResponse{
			Message: "Got it, lunch with chicken and rice. Log it?",
			Decision: voicelog.Decision{
				Intent:         "track",
				Apply:          voicelog.ApplyConfirm,
				ActionHandling: action.HandlingReplace,
			},
			Actions: []action.WireAction{{
				Kind:     string(action.KindMeal),
				Title:    "Log lunch",
				MealType: "lunch",
				Items: []action.WireMealItem{
					{Label: "grilled chicken"},
					{Label: "rice", QuantityCount: 1, QuantityUnit: "cup"},
				},
			}},
		}, nil
	}

	return voicelog.PlanResponse{
		Message: "I can track meals, symptoms, supplements, sleep, and shopping items. What happened?",
		Decision: voicelog.Decision{
			Intent:         "chitchat",
			Apply:          voicelog.ApplyNone,
			ActionHandling: action.HandlingKeep,
		},
	}, nil
}

// ClassifyConsent mirrors the tier-2 contract deterministically.
func (p *Planner) ClassifyConsent(ctx context.Context, text string) (voicelog.ConsentIntent, error) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "yes"), strings.Contains(t, "sure"), strings.Contains(t, "go ahead"):
		return voicelog.ConsentConfirm, nil
	case strings.Contains(t, "no"), strings.Contains(t, "cancel"):
		return voicelog.ConsentCancel, nil
	}
	return planner.ParseConsentVerdict(text), nil
}
