package model

import "time"

// Labeled carries a display label.
type Labeled struct {
	Label string `json:"label"`
}

// Sport identifies the sport of an event.
type Sport struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Actor is the participant a choice refers to.
type Actor struct {
	ID    uint64 `json:"id"`
	Label string `json:"label"`
}

// Choice is one selectable outcome with its odd.
type Choice struct {
	ID    uint64  `json:"id"`
	Odd   float64 `json:"odd"`
	Actor Actor   `json:"actor"`
}

// BetGroup is a question with its choices.
type BetGroup struct {
	Question Labeled  `json:"question"`
	Choices  []Choice `json:"choices"`
}

// SportEvent is an immutable catalog entry.
type SportEvent struct {
	ID          uint64              `json:"id"`
	Label       string              `json:"label,omitempty"`
	Start       time.Time           `json:"start"`
	Competition Labeled             `json:"competition"`
	Category    Labeled             `json:"category"`
	Sport       Sport               `json:"sport"`
	Bet         map[string]BetGroup `json:"bet"`
}

// Selection is a betslip entry resolved against the catalog.
type Selection struct {
	BetID    string  `json:"id"`
	Event    string  `json:"event"`
	Start    string  `json:"start"`
	Question string  `json:"question"`
	Choice   string  `json:"choice"`
	Odd      float64 `json:"odd"`
	Found    bool    `json:"found"`
}
