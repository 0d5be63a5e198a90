package domain

import (
	"encoding/json"
	"fmt"
)

// RoundResult is the outcome of a single stage 2 duel round.
type RoundResult string

const (
	RoundWin  RoundResult = "win"
	RoundDraw RoundResult = "draw"
	RoundLose RoundResult = "lose"
)

// Stage3Phase marks which sub-phase of the precision trial a player is in.
type Stage3Phase string

const (
	Stage3Trial  Stage3Phase = "trial"
	Stage3Actual Stage3Phase = "actual"
)

// StageExtra is the stage-specific payload attached to a progress record.
// Exactly one of the variant pointers is set, matching the record's stage.
// It is stored as a tagged JSON envelope so each stage keeps its own shape.
type StageExtra struct {
	Stage2 *Stage2Extra
	Stage3 *Stage3Extra
}

// Stage2Extra carries the round-by-round duel results.
type Stage2Extra struct {
	RoundResults []RoundResult `json:"round_results"`
}

// Stage3Extra carries the trial/actual sub-phase and the practice time.
type Stage3Extra struct {
	GamePhase Stage3Phase `json:"game_phase"`
	TrialTime *string     `json:"trial_time,omitempty"`
}

type extraEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (e *StageExtra) MarshalJSON() ([]byte, error) {
	switch {
	case e.Stage2 != nil:
		data, err := json.Marshal(e.Stage2)
		if err != nil {
			return nil, err
		}
		return json.Marshal(extraEnvelope{Kind: "stage2", Data: data})
	case e.Stage3 != nil:
		data, err := json.Marshal(e.Stage3)
		if err != nil {
			return nil, err
		}
		return json.Marshal(extraEnvelope{Kind: "stage3", Data: data})
	}
	return json.Marshal(extraEnvelope{Kind: "stage1"})
}

func (e *StageExtra) UnmarshalJSON(b []byte) error {
	var env extraEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	*e = StageExtra{}
	switch env.Kind {
	case "stage1", "":
		return nil
	case "stage2":
		e.Stage2 = new(Stage2Extra)
		return json.Unmarshal(env.Data, e.Stage2)
	case "stage3":
		e.Stage3 = new(Stage3Extra)
		return json.Unmarshal(env.Data, e.Stage3)
	}

	return fmt.Errorf("unknown stage extra kind %q", env.Kind)
}
