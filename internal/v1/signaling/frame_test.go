package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Kinds(t *testing.T) {
	cases := []struct {
		name string
		data string
		kind FrameKind
	}{
		{"untyped is chat", `{"message":"hi"}`, KindChat},
		{"unknown type is chat", `{"type":"wave","message":"hi"}`, KindChat},
		{"new-user", `{"type":"new-user","message":"user connected"}`, KindNewUser},
		{"offer", `{"type":"offer","to":"y","offer":{"sdp":"s"}}`, KindOffer},
		{"answer", `{"type":"answer","to":"y","answer":{"sdp":"s"}}`, KindAnswer},
		{"ice-candidate", `{"type":"ice-candidate","to":"y","candidate":{}}`, KindIceCandidate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, frame.Kind())
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, data := range []string{`{`, `[]`, `"str"`, ``} {
		_, err := DecodeFrame([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestFrame_PayloadPerKind(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"offer","to":"y","offer":{"sdp":"s"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sdp":"s"}`, string(frame.payload()))

	frame, err = DecodeFrame([]byte(`{"type":"ice-candidate","to":"y","candidate":{"c":1}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":1}`, string(frame.payload()))

	frame, err = DecodeFrame([]byte(`{"message":"chat"}`))
	require.NoError(t, err)
	assert.Nil(t, frame.payload())
}
