package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageExtra_Envelope(t *testing.T) {
	e := &StageExtra{Stage2: &Stage2Extra{
		RoundResults: []RoundResult{RoundWin, RoundLose, RoundDraw},
	}}

	b, err := json.Marshal(e)
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"stage2","data":{"round_results":["win","lose","draw"]}}`, string(b))

	var got StageExtra
	require.NoError(t, json.Unmarshal(b, &got))
	require.Nil(t, got.Stage3)
	require.Equal(t, e.Stage2, got.Stage2)
}

func TestStageExtra_Stage1HasNoPayload(t *testing.T) {
	b, err := json.Marshal(&StageExtra{})
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"stage1"}`, string(b))

	var got StageExtra
	require.NoError(t, json.Unmarshal(b, &got))
	require.Nil(t, got.Stage2)
	require.Nil(t, got.Stage3)
}

func TestStageExtra_UnknownKind(t *testing.T) {
	var got StageExtra
	err := json.Unmarshal([]byte(`{"kind":"stage9"}`), &got)
	require.Error(t, err)
}
