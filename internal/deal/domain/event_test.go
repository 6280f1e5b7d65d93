package domain

import (
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadByType(t *testing.T) {
	from := snowflake.ID(7)
	raw, err := json.Marshal(TransitionPayload{FromStageID: &from, ToStageID: 8, StageName: "Won"})
	require.NoError(t, err)

	payload, err := DecodePayload(EventWon, raw)
	require.NoError(t, err)
	transition, ok := payload.(TransitionPayload)
	require.True(t, ok)
	assert.Equal(t, EventWon, transition.EventType())
	assert.Equal(t, snowflake.ID(8), transition.ToStageID)
	assert.Equal(t, from, *transition.FromStageID)

	payload, err = DecodePayload(EventAssigned, nil)
	require.NoError(t, err)
	assert.Equal(t, AssignedPayload{}, payload)
}

func TestDecodePayloadUnknownType(t *testing.T) {
	_, err := DecodePayload(EventType("MERGED"), []byte(`{}`))
	assert.Error(t, err)
}

func TestLineTotalAppliesDiscountOnce(t *testing.T) {
	assert.Equal(t, "250", LineTotal(3, decimal.NewFromInt(100), decimal.NewFromInt(50)).String())
}
