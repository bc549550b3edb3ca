package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noprime/redirector/internal/domain"
)

func TestNewEnvelope_WireShapes(t *testing.T) {
	tabID := 5

	tests := []struct {
		name        string
		msg         Message
		wantType    string
		wantPayload string
	}{
		{"get product", &GetProduct{TabID: &tabID}, TypeGetProduct, `{"tabId":5}`},
		{"get product without tab", &GetProduct{}, TypeGetProduct, `{"tabId":null}`},
		{"query product", &QueryProduct{}, TypeQueryProduct, `{}`},
		{"enabled changed", &EnabledChanged{Enabled: false}, TypeEnabledChanged, `{"enabled":false}`},
		{"tab updated", &TabUpdated{TabID: 5, URL: "https://www.amazon.com/"}, TypeTabUpdated, `{"tabId":5,"url":"https://www.amazon.com/"}`},
		{"tab removed", &TabRemoved{TabID: 5}, TypeTabRemoved, `{"tabId":5}`},
		{"empty reply", &Reply{}, TypeReply, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msg, 3)
			require.NoError(t, err)

			assert.NotEmpty(t, env.ID)
			assert.Equal(t, tt.wantType, env.Type)
			assert.Equal(t, 3, env.TabID)
			assert.JSONEq(t, tt.wantPayload, string(env.Payload))
		})
	}
}

func TestProductDetectedPayload(t *testing.T) {
	d := &domain.Detection{
		ProductInfo: domain.ProductInfo{Brand: "Sony", Title: "Headphones", URL: "https://www.amazon.com/dp/B09XS7JWHH"},
		RedirectURL: "https://www.sony.com",
		MatchType:   domain.MatchTypeBrand,
		StoreBrand:  "sony",
	}

	env, err := NewEnvelope(&ProductDetected{Payload: d}, 7)
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{
		"brand":"Sony","title":"Headphones","url":"https://www.amazon.com/dp/B09XS7JWHH",
		"isBook":false,"isbn":null,"redirectUrl":"https://www.sony.com",
		"matchType":"brand","storeBrand":"sony"}}`, string(env.Payload))

	data, err := env.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	msg, err := Decode[ProductDetected](back)
	require.NoError(t, err)
	assert.Equal(t, d, msg.Payload)
}

func TestDecodeDetection(t *testing.T) {
	env, err := NewEnvelope(&Reply{}, 0)
	require.NoError(t, err)
	assert.True(t, env.IsNull())

	d, err := DecodeDetection(env)
	require.NoError(t, err)
	assert.Nil(t, d)

	env, err = NewEnvelope(&Reply{Detection: &domain.Detection{MatchType: domain.MatchTypeBook}}, 0)
	require.NoError(t, err)
	d, err = DecodeDetection(env)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, domain.MatchTypeBook, d.MatchType)

	_, err = Decode[EnabledChanged](nil)
	assert.Error(t, err)
}
