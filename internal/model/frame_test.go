package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundFrameJSON(t *testing.T) {
	data, err := json.Marshal(HistoryFrame(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"history","messages":[]}`, string(data))

	data, err = json.Marshal(ErrorFrame("No active conversation"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","content":"No active conversation"}`, string(data))

	data, err = json.Marshal(MessageFrame(&Message{ID: "m1", Role: RoleAssistant, Content: "hi"}))
	require.NoError(t, err)

	var decoded OutboundFrame
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, FrameMessage, decoded.Type)
	require.NotNil(t, decoded.Message)
	assert.Equal(t, RoleAssistant, decoded.Message.Role)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$999.99", FormatPrice(99999))
	assert.Equal(t, "$0.05", FormatPrice(5))
	assert.Equal(t, "$12.00", FormatPrice(1200))
	assert.Equal(t, "-$1.50", FormatPrice(-150))
}

func TestConversationStatusValid(t *testing.T) {
	assert.True(t, StatusResolved.Valid())
	assert.False(t, ConversationStatus("closed").Valid())
}
