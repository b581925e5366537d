package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secintel/internal/domain/events"
)

func TestPushEventRoundTrip(t *testing.T) {
	t.Parallel()

	payload := events.PushEventPayload{
		Repository: "acme/payments",
		Sender:     "octocat",
		Ref:        "refs/heads/main",
		Commits: []events.Commit{
			{
				SHA: "a1b2c3d4",
				Files: []events.CommitFile{
					{Path: "config/settings.py", Status: events.FileStatusModified, Changes: 12},
					{Path: "README.md", Status: events.FileStatusRemoved, Changes: 3},
				},
			},
		},
	}

	wire, err := SerializeEventEnvelope(events.EventTypePush, payload)
	require.NoError(t, err)

	et, raw, err := UnmarshalUniversalEnvelope(wire)
	require.NoError(t, err)
	assert.Equal(t, events.EventTypePush, et)

	decoded, err := DeserializePayload(et, raw)
	require.NoError(t, err)

	got, ok := decoded.(*events.PushEventPayload)
	require.True(t, ok)
	assert.Equal(t, payload, *got)
}

func TestSerializeAcceptsPointerPayload(t *testing.T) {
	t.Parallel()

	payload := &events.ReleaseEventPayload{Repository: "acme/payments", Action: "published", TagName: "v1.2.0"}
	wire, err := SerializeEventEnvelope(events.EventTypeRelease, payload)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"release"`)
}

func TestSerializeWrongPayloadType(t *testing.T) {
	t.Parallel()

	_, err := SerializeEventEnvelope(events.EventTypePush, events.ReleaseEventPayload{})
	assert.Error(t, err)
}

func TestUnmarshalUnknownEventType(t *testing.T) {
	t.Parallel()

	_, _, err := UnmarshalUniversalEnvelope([]byte(`{"event_type":"deployment","payload":{}}`))
	assert.Error(t, err)

	_, _, err = UnmarshalUniversalEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
